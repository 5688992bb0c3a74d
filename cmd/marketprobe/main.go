// Command marketprobe fetches unfiltered market price records and prints a
// sample and the state names the upstream uses.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/farm-api/internal/config"
	"github.com/Brownie44l1/farm-api/internal/gateway"
)

const ErrExitCode = 1

func main() {
	if err := NewProbeCmd().Execute(); err != nil {
		fmt.Println(err.Error())
		os.Exit(ErrExitCode)
	}
}

type recordSource interface {
	Records(ctx context.Context) ([]gateway.Record, error)
}

func NewProbeCmd() *cobra.Command {
	opts := gateway.MarketOptions{
		URL:         gateway.DefaultMarketURL,
		Timeout:     30 * time.Second,
		RecordLimit: gateway.DefaultRecordLimit,
	}
	rows := 5
	cmd := &cobra.Command{
		Use:   "marketprobe",
		Short: "inspect raw market price records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			if opts.APIKey == "" {
				opts.APIKey = os.Getenv(config.EnvPrefix + "MARKET_API_KEY")
			}
			return probe(ctx, cmd.OutOrStdout(), gateway.NewMarketClient(opts), rows)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.URL, "url", opts.URL, "market price api url")
	flags.StringVar(&opts.APIKey, "api-key", opts.APIKey, "market price api key")
	flags.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "request timeout")
	flags.IntVar(&opts.RecordLimit, "limit", opts.RecordLimit, "records to fetch")
	flags.IntVar(&rows, "rows", rows, "sample rows to print")
	return cmd
}

func probe(ctx context.Context, out io.Writer, src recordSource, rows int) error {
	records, err := src.Records(ctx)
	if err != nil {
		return fmt.Errorf("fetch market records: %w", err)
	}
	fmt.Fprintf(out, "fetched %d records\n", len(records))
	if len(records) == 0 {
		return fmt.Errorf("the api returned no records")
	}

	sample := records[:min(rows, len(records))]
	columns := recordColumns(sample)
	t := table.NewWriter()
	t.SetOutputMirror(out)
	header := table.Row{}
	for _, c := range columns {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for _, rec := range sample {
		row := table.Row{}
		for _, c := range columns {
			row = append(row, rec[c])
		}
		t.AppendRow(row)
	}
	t.Render()

	states, ok := uniqueStates(records)
	if !ok {
		return fmt.Errorf("the api response did not contain a 'state' field")
	}
	fmt.Fprintln(out, "unique state names:")
	for _, s := range states {
		fmt.Fprintf(out, "  %s\n", s)
	}
	return nil
}

func recordColumns(records []gateway.Record) []string {
	seen := map[string]bool{}
	columns := []string{}
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

// uniqueStates lists state values in order of first appearance.
func uniqueStates(records []gateway.Record) ([]string, bool) {
	seen := map[string]bool{}
	states := []string{}
	found := false
	for _, rec := range records {
		v, ok := rec["state"]
		if !ok {
			continue
		}
		found = true
		s := fmt.Sprint(v)
		if !seen[s] {
			seen[s] = true
			states = append(states, s)
		}
	}
	return states, found
}
