// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/salvator/internal/config"
	"github.com/xkilldash9x/salvator/internal/observability"
)

// defaultConfigPath is where `salvator env` writes and every command reads
// unless --config says otherwise.
const defaultConfigPath = "~/.salvator/config.yaml"

// app is the state shared by the commands of one root command instance.
// Every NewRootCommand call gets its own, so flags never leak between runs.
type app struct {
	v       *viper.Viper
	cfgFile string
	// configPath is the resolved file the configuration was read from.
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
	// allowMissingConfig lets an explicit --config name a file that does
	// not exist yet, which is how `env` creates one.
	allowMissingConfig bool
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "salvator",
		Short: "Salvator greets your friends on their birthday so you don't have to remember.",
		// Version is dynamically set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), banner())
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is "+defaultConfigPath+")")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newRunCommand(a),
		newBirthdaysCommand(a),
		newEnvCommand(a),
		newCronCommand(a),
		newHistoryCommand(a),
		newLogsCommand(a),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command line in os.Args. Errors are printed here; the
// caller only turns them into an exit code with ExitCode.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		// The command already told the user what happened.
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(root.ErrOrStderr(), "Interrupted.")
	default:
		if logger := observability.GetLogger(); logger != nil {
			logger.Debug("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(root.ErrOrStderr(), errorStyle.Render("Error:"), err)
	}
	observability.Sync()
	return err
}

// initialize reads the config file and environment, then starts the logger.
func (a *app) initialize() error {
	if a.cfg != nil {
		return nil
	}

	path, explicit, err := a.resolveConfigPath()
	if err != nil {
		return err
	}
	a.configPath = path

	config.SetDefaults(a.v)
	a.v.SetConfigFile(path)
	a.v.SetConfigType("yaml")
	a.v.SetEnvPrefix(config.EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
		if !missing || (explicit && !a.allowMissingConfig) {
			return fmt.Errorf("error reading config file %s: %w", path, err)
		}
		// No config file yet; defaults and environment variables apply.
	}

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	observability.InitializeLogger(cfg.Logger)
	a.logger = observability.GetLogger()
	a.logger.Debug("Starting salvator", zap.String("version", Version), zap.String("config", path))
	return nil
}

func (a *app) resolveConfigPath() (path string, explicit bool, err error) {
	if a.cfgFile != "" {
		path, err = homedir.Expand(a.cfgFile)
		if err != nil {
			return "", true, fmt.Errorf("failed to expand config path: %w", err)
		}
		return filepath.Clean(path), true, nil
	}
	path, err = homedir.Expand(defaultConfigPath)
	if err != nil {
		return "", false, fmt.Errorf("failed to locate home directory: %w", err)
	}
	return path, false, nil
}

// ExitError carries a process exit code for outcomes that are not failures
// of the tool itself, such as a run where some greetings were not sent.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string { return e.Reason }

// ExitCode maps the result of Execute to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}

// stdinFile returns the process stdin when the command reads from it, so
// terminal checks can be made against its descriptor.
func stdinFile(cmd *cobra.Command) (*os.File, bool) {
	f, ok := cmd.InOrStdin().(*os.File)
	return f, ok
}
