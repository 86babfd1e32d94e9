package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan [file...]",
	Short: "Learn issue occurrences from log files",
	Long: `Scan each file (or stdin for "-" or no arguments) for known issue
signatures and record every confident match in the issue history.`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	sources, err := readSources(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	rt, err := newRuntime(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	occs, scanErr := rt.expert.Scan(cmd.Context(), sources)
	if err := printOccurrences(cmd.OutOrStdout(), occs); err != nil {
		return err
	}
	return scanErr
}

const maxSourceBytes = 16 << 20

func readSources(args []string, stdin io.Reader) ([]string, error) {
	if len(args) == 0 {
		args = []string{"-"}
	}
	sources := make([]string, 0, len(args))
	for _, name := range args {
		var (
			data []byte
			err  error
		)
		if name == "-" {
			data, err = io.ReadAll(io.LimitReader(stdin, maxSourceBytes))
		} else {
			data, err = readFileLimited(name)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		sources = append(sources, string(data))
	}
	return sources, nil
}

func readFileLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxSourceBytes))
}
