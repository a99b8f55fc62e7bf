// Command ems is the file-stage driver (spec.md §4.E, §6 "CLI (file
// stage)"): it scans a directory of input files, forks one child
// process per file bounded at max_processes, and inside each child
// drains that file's commands across max_threads goroutine workers.
//
// It doubles as its own worker binary: "ems __worker <file> <threads>
// <delay_us>" is the hidden re-exec entry point internal/procpool.Pool
// spawns per child, since Go has no fork().
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mistakeknot/ems/internal/command"
	"github.com/mistakeknot/ems/internal/ems"
	"github.com/mistakeknot/ems/internal/executor"
	"github.com/mistakeknot/ems/internal/filepool"
	"github.com/mistakeknot/ems/internal/procpool"
)

const workerArg = "__worker"

func main() {
	if len(os.Args) > 1 && os.Args[1] == workerArg {
		os.Exit(runWorker(os.Args[2:]))
	}

	root := &cobra.Command{
		Use:   "ems <directory> <max_processes> <max_threads> [delay_ms]",
		Short: "ems - Event Management Service file-stage driver",
		Args:  cobra.RangeArgs(3, 4),
		RunE:  runDriver,
		// cobra's own usage-error exit path already returns 1 via
		// root.Execute()'s caller; SilenceUsage keeps a bad command
		// line from dumping the full help text on top of it.
		SilenceUsage: true,
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ems:", err)
		os.Exit(1)
	}
}

func runDriver(cmd *cobra.Command, args []string) error {
	dir := args[0]
	maxProcesses, err := parseUint(args[1])
	if err != nil {
		return fmt.Errorf("max_processes: %w", err)
	}
	maxThreads, err := parseUint(args[2])
	if err != nil {
		return fmt.Errorf("max_threads: %w", err)
	}
	delayMs := 0
	if len(args) == 4 {
		delayMs, err = parseUint(args[3])
		if err != nil {
			return fmt.Errorf("delay_ms: %w", err)
		}
	}

	files, err := inputFiles(dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}

	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}

	pool := procpool.New(self, workerArg, maxProcesses, maxThreads, delayMs*1000)

	start := time.Now()
	results := pool.ProcessAll(files)
	elapsed := time.Since(start)

	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "ems: %s: %v\n", r.File, r.Err)
			continue
		}
		if r.ExitCode != 0 {
			failures++
			fmt.Fprintf(os.Stderr, "ems: %s: exit %d\n", r.File, r.ExitCode)
		}
	}

	summary := fmt.Sprintf("processed %s file(s) in %s, %d failed",
		humanize.Comma(int64(len(files))), elapsed.Round(time.Millisecond), failures)
	if isatty.IsTerminal(os.Stdout.Fd()) && failures == 0 {
		fmt.Println("\x1b[32m" + summary + "\x1b[0m")
	} else {
		fmt.Println(summary)
	}

	if failures > 0 {
		os.Exit(1)
	}
	return nil
}

func inputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".out") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func parseUint(s string) (int, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid non-negative integer %q", s)
	}
	return int(n), nil
}

// runWorker is "ems __worker <file> <max_threads> <access_delay_us>":
// one process, one file, its own disjoint Store (spec.md §5).
func runWorker(args []string) int {
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "ems __worker: usage: __worker <file> <max_threads> <access_delay_us>")
		return 1
	}
	inPath := args[0]
	maxThreads, err := parseUint(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "ems __worker:", err)
		return 1
	}
	accessDelayUs, err := parseUint(args[2])
	if err != nil {
		fmt.Fprintln(os.Stderr, "ems __worker:", err)
		return 1
	}

	in, err := os.Open(inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ems __worker:", err)
		return 1
	}
	defer in.Close()

	outPath := outputPath(inPath)
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ems __worker:", err)
		return 1
	}
	defer out.Close()

	store := ems.New()
	if err := store.Initialize(time.Duration(accessDelayUs) * time.Microsecond); err != nil {
		fmt.Fprintln(os.Stderr, "ems __worker:", err)
		return 1
	}

	ex := executor.New(store, out)
	dispatcher := filepool.NewDispatcher(ex, maxThreads)
	dispatcher.Run(command.NewParser(in))

	return 0
}

// outputPath replaces the input file's final extension with .out
// (spec.md §6 "Output format").
func outputPath(in string) string {
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + ".out"
}
