package auth

import (
	"fmt"
	"testing"

	"github.com/xkilldash9x/salvator/internal/config"
)

func fmtValue(v interface{}) string { return fmt.Sprint(v) }

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	return config.NewDefaultConfig()
}
