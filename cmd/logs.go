package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

func newLogsCommand(a *app) *cobra.Command {
	var (
		follow bool
		lines  int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the log file and follow new lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Logger.LogFile
			if path == "" {
				return errors.New("file logging is disabled (logger.log_file is empty)")
			}
			return followLog(cmd, path, lines, follow)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", true, "keep printing lines as they are written")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of existing lines to print first, 0 for all")
	return cmd
}

func followLog(cmd *cobra.Command, path string, lines int, follow bool) error {
	offset, err := lastLinesOffset(path, lines)
	if err != nil {
		return err
	}

	t, err := tail.TailFile(path, tail.Config{
		Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer t.Cleanup()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Wait()
			}
			if line.Err != nil {
				_ = t.Stop()
				return line.Err
			}
			fmt.Fprintln(out, line.Text)
		}
	}
}

// lastLinesOffset finds where the last n lines of path begin. n <= 0 means
// the whole file.
func lastLinesOffset(path string, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	const chunk = 4096
	end := info.Size()
	buf := make([]byte, chunk)
	seen := 0
	pos := end
	for pos > 0 {
		size := int64(chunk)
		if pos < size {
			size = pos
		}
		pos -= size
		if _, err := f.ReadAt(buf[:size], pos); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		b := buf[:size]
		for i := len(b) - 1; i >= 0; i-- {
			if b[i] != '\n' {
				continue
			}
			// A newline that ends the file does not start a line.
			if pos+int64(i) == end-1 {
				continue
			}
			seen++
			if seen == n {
				return pos + int64(i) + 1, nil
			}
		}
	}
	return 0, nil
}
