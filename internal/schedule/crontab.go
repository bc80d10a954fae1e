// Package schedule installs the daily run as a marked line in the user's crontab.
package schedule

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Marker tags the lines this package owns so foreign entries are never touched.
const Marker = "# salvator"

// Crontab reads and replaces the whole table.
type Crontab interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, table string) error
}

// SystemCrontab drives the crontab(1) binary.
type SystemCrontab struct {
	Binary string
}

func (c SystemCrontab) bin() string {
	if c.Binary == "" {
		return "crontab"
	}
	return c.Binary
}

// Read returns the current table. A user without a table gets "".
func (c SystemCrontab) Read(ctx context.Context) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.bin(), "-l")
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && strings.Contains(strings.ToLower(stderr.String()), "no crontab") {
			return "", nil
		}
		return "", fmt.Errorf("crontab -l: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Write replaces the table with table.
func (c SystemCrontab) Write(ctx context.Context, table string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.bin(), "-")
	cmd.Stdin = strings.NewReader(table)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("crontab -: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Scheduler manages the marked entry.
type Scheduler struct {
	tab    Crontab
	logger *zap.Logger
}

func New(tab Crontab, logger *zap.Logger) *Scheduler {
	return &Scheduler{tab: tab, logger: logger.Named("schedule")}
}

// Install adds or replaces the marked entry so that command runs on expression.
func (s *Scheduler) Install(ctx context.Context, expression, command string) (string, error) {
	if n := len(strings.Fields(expression)); n != 5 {
		return "", fmt.Errorf("cron expression %q has %d fields, want 5", expression, n)
	}
	if strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("cron command is empty")
	}
	table, err := s.tab.Read(ctx)
	if err != nil {
		return "", err
	}
	line := Entry(expression, command)
	kept, _ := withoutMarked(table)
	if err := s.tab.Write(ctx, appendLine(kept, line)); err != nil {
		return "", err
	}
	s.logger.Info("Cron entry installed", zap.String("entry", line))
	return line, nil
}

// Remove deletes every marked entry and reports how many there were.
func (s *Scheduler) Remove(ctx context.Context) (int, error) {
	table, err := s.tab.Read(ctx)
	if err != nil {
		return 0, err
	}
	kept, removed := withoutMarked(table)
	if removed == 0 {
		return 0, nil
	}
	if err := s.tab.Write(ctx, kept); err != nil {
		return 0, err
	}
	s.logger.Info("Cron entries removed", zap.Int("count", removed))
	return removed, nil
}

// List returns the marked entries.
func (s *Scheduler) List(ctx context.Context) ([]string, error) {
	table, err := s.tab.Read(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(table, "\n") {
		if isMarked(line) {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out, nil
}

// Entry formats one crontab line.
func Entry(expression, command string) string {
	return strings.Join(strings.Fields(expression), " ") + " " + command + " " + Marker
}

// Command builds the invocation cron runs. Arguments containing shell
// metacharacters are single-quoted.
func Command(binary, configPath string) string {
	parts := []string{shellQuote(binary), "run"}
	if configPath != "" {
		parts = append(parts, "--config", shellQuote(configPath))
	}
	return strings.Join(parts, " ") + " >/dev/null 2>&1"
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t'\"$`\\;&|<>()*?[]#~%") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isMarked(line string) bool {
	return strings.HasSuffix(strings.TrimSpace(line), Marker)
}

func withoutMarked(table string) (string, int) {
	var (
		kept    []string
		removed int
	)
	for _, line := range strings.Split(table, "\n") {
		if isMarked(line) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n"), removed
}

func appendLine(table, line string) string {
	table = strings.TrimRight(table, "\n")
	if table == "" {
		return line + "\n"
	}
	return table + "\n" + line + "\n"
}
