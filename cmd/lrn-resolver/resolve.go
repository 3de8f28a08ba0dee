package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/lrn-resolver/internal/config"
	"github.com/Sternrassler/lrn-resolver/pkg/batch"
	"github.com/Sternrassler/lrn-resolver/pkg/lrn"
	"github.com/spf13/cobra"
)

func resolveCmd(cfg *config.Config) *cobra.Command {
	var file string
	var batchSize int
	var maxConcurrent int

	c := &cobra.Command{
		Use:   "resolve [numbers...]",
		Short: "Resolve phone numbers to LRN and SPID",
		Long: "Resolve phone numbers given as arguments or read from a file (one per line, " +
			"'-' for stdin). Prints one number,lrn,spid line per distinct number in input order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			numbers := append([]string(nil), args...)
			if file != "" {
				fromFile, err := readNumbersFrom(file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				numbers = append(numbers, fromFile...)
			}
			if len(numbers) == 0 {
				return fmt.Errorf("no numbers given (pass them as arguments or with --file)")
			}

			if cmd.Flags().Changed("batch-size") {
				cfg.MajorBatchSize = batchSize
			}
			if cmd.Flags().Changed("max-concurrent") {
				cfg.MaxConcurrent = maxConcurrent
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			results, stats, err := a.orchestrator.Resolve(cmd.Context(), numbers)
			if results != nil {
				if werr := writeResults(cmd.OutOrStdout(), numbers, results); werr != nil {
					return werr
				}
				printSummary(cmd.ErrOrStderr(), stats)
			}
			return err
		},
	}

	c.Flags().StringVarP(&file, "file", "f", "", "File with one number per line ('-' for stdin)")
	c.Flags().IntVar(&batchSize, "batch-size", 500, "Numbers per major batch (one connection pool each)")
	c.Flags().IntVar(&maxConcurrent, "max-concurrent", 10, "Concurrent lookups (1 = sequential)")
	return c
}

func readNumbersFrom(path string, stdin io.Reader) ([]string, error) {
	if path == "-" {
		return readNumbers(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open numbers file: %w", err)
	}
	defer f.Close()
	return readNumbers(f)
}

// readNumbers returns the trimmed non-empty lines of r, skipping '#' comments.
func readNumbers(r io.Reader) ([]string, error) {
	var numbers []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		numbers = append(numbers, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read numbers: %w", err)
	}
	return numbers, nil
}

func writeResults(w io.Writer, numbers []string, results map[string]string) error {
	bw := bufio.NewWriter(w)
	seen := make(map[string]bool, len(results))
	for _, number := range numbers {
		if seen[number] {
			continue
		}
		seen[number] = true

		r := lrn.NewResult(number, results[number])
		if r.Error {
			fmt.Fprintf(bw, "%s,error,\n", number)
			continue
		}
		fmt.Fprintf(bw, "%s,%s,%s\n", number, r.LRN, r.SPID)
	}
	return bw.Flush()
}

func printSummary(w io.Writer, stats batch.Stats) {
	fmt.Fprintf(w, "%d numbers: %d cached, %d fetched (%d ok, %d errors, %.1f%% success) in %s, %.1f lookups/sec\n",
		stats.Requested, stats.CacheHits, stats.CacheMisses, stats.Successes, stats.Errors,
		stats.SuccessPercent(), stats.Elapsed.Round(time.Millisecond), stats.Rate())
}
