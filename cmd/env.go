package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/salvator/api/schemas"
)

func newEnvCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Store the account login in the config file",
		Long: `Prompts for the account identifier and secret and writes them to the config
file, readable only by you. The secret is read without echo on a terminal.`,
		Args: cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.allowMissingConfig = true
			return a.initialize()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.env(cmd)
		},
	}
}

func (a *app) env(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())

	fmt.Fprint(out, "Account identifier: ")
	identifier, err := readLine(in)
	if err != nil {
		return fmt.Errorf("failed to read identifier: %w", err)
	}
	fmt.Fprint(out, "Account secret: ")
	secret, err := readSecret(cmd, in)
	if err != nil {
		return fmt.Errorf("failed to read secret: %w", err)
	}

	creds := schemas.Credentials{Identifier: identifier, Secret: secret}
	if !creds.Valid() {
		return errors.New("both the identifier and the secret are required")
	}
	if err := writeCredentials(a.configPath, creds); err != nil {
		return err
	}

	a.logger.Info("Account stored", zap.Object("account", creds), zap.String("config", a.configPath))
	fmt.Fprintln(out, sentStyle.Render("Saved account "+schemas.MaskIdentifier(identifier)+" to "+a.configPath))
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readSecret disables echo when stdin is a terminal and falls back to a
// plain line read for pipes.
func readSecret(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	if f, ok := stdinFile(cmd); ok && isTerminal(int(f.Fd())) {
		b, err := readPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return readLine(in)
}

// writeCredentials merges the account into the YAML config at path, keeping
// every other key. The directory is created 0700 and the file left 0600.
func writeCredentials(path string, creds schemas.Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read existing config: %w", err)
	}
	v.Set("account.identifier", creds.Identifier)
	v.Set("account.secret", creds.Secret)

	// Create the file with restrictive permissions before any secret lands in it.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	f.Close()
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict config file: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
