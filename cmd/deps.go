package cmd

import (
	"os"

	"golang.org/x/term"

	"github.com/xkilldash9x/salvator/internal/orchestrator"
	"github.com/xkilldash9x/salvator/internal/schedule"
	"github.com/xkilldash9x/salvator/internal/store"
)

// Define function variables for dependency injection/mocking in tests.
var (
	openSession     = orchestrator.ChromeOpener
	buildComponents = orchestrator.DefaultComponents
	openStore       = store.Open
	newCrontab      = func() schedule.Crontab { return schedule.SystemCrontab{} }
	osExecutable    = os.Executable
	isTerminal      = term.IsTerminal
	readPassword    = term.ReadPassword
)
