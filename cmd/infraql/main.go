// Command infraql is a minimal single-shot CLI over the query engine: parse
// one statement from the command line, execute it against the mock
// reference source, print the result. A full interactive shell and rich
// terminal formatting are external collaborators the core does not own.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cyw0ng95/infraql/internal/cache"
	"github.com/cyw0ng95/infraql/internal/config"
	"github.com/cyw0ng95/infraql/internal/errs"
	"github.com/cyw0ng95/infraql/internal/log"
	"github.com/cyw0ng95/infraql/internal/model"
	"github.com/cyw0ng95/infraql/pkg/engine"
	"github.com/cyw0ng95/infraql/plugins/mock"
)

// outputMode mirrors the teacher CLI's Formatter.mode switch (table/csv/list/
// json), collapsed to the two shapes a single-shot command needs.
type outputMode string

const (
	outputTable outputMode = "table"
	outputJSON  outputMode = "json"
)

func main() {
	root := newRootCmd()
	root.SilenceErrors = true
	root.SilenceUsage = true
	if err := root.Execute(); err != nil {
		if code := errs.CodeOf(err); code != "" {
			fmt.Fprintf(os.Stderr, "%s: %v\n", code, err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	var format string

	root := &cobra.Command{
		Use:   "infraql [query]",
		Short: "Query infrastructure data sources with SQL-like syntax",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(log.LevelDebug)
			}
			mode := outputTable
			if strings.EqualFold(format, string(outputJSON)) {
				mode = outputJSON
			}
			return runQuery(cmd.Context(), strings.Join(args, " "), mode)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&format, "format", "table", "output format: table or json")
	root.SetContext(context.Background())
	return root
}

func runQuery(ctx context.Context, sql string, mode outputMode) error {
	eng := engine.New(config.Default())
	if err := eng.Register(ctx, "mock", mock.New(), nil); err != nil {
		return fmt.Errorf("register mock source: %w", err)
	}

	result, err := eng.Query(ctx, sql)
	if err != nil {
		return err
	}
	if mode == outputJSON {
		return printResultJSON(result)
	}
	printResult(result)
	return nil
}

// printResultJSON emits result as a single JSON document, the shape used by
// scripting callers that pipe infraql's output into other tools.
func printResultJSON(result interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func printResult(result interface{}) {
	switch r := result.(type) {
	case model.QueryResult:
		printQueryResult(r)
	case model.TraceResult:
		fmt.Printf("trace %s=%v: %d hop(s)\n", r.Identifier, r.Value, r.TotalHops)
		for _, hop := range r.Hops {
			fmt.Printf("  [%s] %s.%s %v\n", hop.Timestamp.Format("15:04:05.000"), hop.Source, hop.Table, hop.Data)
		}
	case model.DescribeResult:
		fmt.Printf("table %s (source=%s)\n", r.Table, r.Source)
		if r.HasEstimatedRows {
			fmt.Printf("  ~%s rows (estimated)\n", humanize.Comma(r.EstimatedRows))
		}
		for _, col := range r.Columns {
			fmt.Printf("  %-20s %s\n", col.Name, col.Type)
		}
	case model.ShowResult:
		fmt.Printf("%s (%d):\n", r.What, len(r.Items))
		for _, item := range r.Items {
			fmt.Printf("  %v\n", item)
		}
	case model.CacheResult:
		printCacheResult(r)
	default:
		fmt.Printf("%v\n", r)
	}
}

// printCacheResult renders CACHE SHOW's stats with humanize.Bytes/humanize.Time
// so operators see a memory footprint and a relative staleness instead of raw
// struct fields.
func printCacheResult(r model.CacheResult) {
	fmt.Printf("cache %s: %s\n", r.Action, r.Message)
	stats, ok := r.Stats.(cache.Stats)
	if !ok {
		if r.Stats != nil {
			fmt.Printf("  %+v\n", r.Stats)
		}
		return
	}
	fmt.Printf("  %d/%d entries, %.1f%% hit rate, %s\n", stats.Size, stats.MaxSize, stats.HitRate*100, humanize.Bytes(uint64(stats.ApproxBytes)))
	if stats.OldestAge > 0 {
		fmt.Printf("  oldest entry from %s\n", humanize.Time(time.Now().Add(-stats.OldestAge)))
	}
	for _, ts := range stats.PerTable {
		fmt.Printf("  %-15s entries=%-4d hits=%-4d misses=%-4d %s\n", ts.Table, ts.Entries, ts.Hits, ts.Misses, humanize.Bytes(uint64(ts.ApproxBytes)))
	}
}

func printQueryResult(r model.QueryResult) {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	fmt.Println(strings.Join(names, "\t"))
	for _, row := range r.Rows {
		vals := make([]string, len(names))
		for i, name := range names {
			vals[i] = fmt.Sprintf("%v", row[name])
		}
		fmt.Println(strings.Join(vals, "\t"))
	}
	fmt.Printf("(%s rows", humanize.Comma(int64(r.RowCount)))
	if r.Truncated {
		fmt.Printf(", truncated from %s", humanize.Comma(int64(r.TotalCount)))
	}
	fmt.Printf(", %.2fms)\n", r.ExecutionTimeMs)
	if r.HasEstimatedRows {
		fmt.Printf("source reports ~%s rows total\n", humanize.Comma(r.EstimatedRows))
	}
	if r.Warning != "" {
		fmt.Println("warning:", r.Warning)
	}
}
