// Command compare prices a CSV file of readings under the configured plans.
//
//	compare -config config/config.yaml -limit 2 readings.csv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/icodeforyou/priceplan-go/config"
	"github.com/icodeforyou/priceplan-go/logging"
	"github.com/icodeforyou/priceplan-go/pricing"
	"github.com/icodeforyou/priceplan-go/readings"
	"github.com/icodeforyou/priceplan-go/types"
	"github.com/icodeforyou/priceplan-go/types/maybe"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	meter := flag.String("meter", "", "meter id, its account decides the current plan")
	limit := flag.Int("limit", -1, "number of recommendations to show, all when negative")
	flag.Parse()

	if err := run(*configPath, types.MeterID(*meter), *limit, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath string, meter types.MeterID, limit int, file string) error {
	cnfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(logging.NewConsoleHandler(os.Stderr, cnfg.Logging.GetConsoleLevel()))

	var in io.Reader = os.Stdin
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	rows, err := readings.ParseCSV(in)
	if err != nil {
		if len(rows) == 0 {
			return err
		}
		logger.Warn("skipped invalid rows", slog.Any("error", err))
	}

	plans, err := cnfg.BuildPricePlans()
	if err != nil {
		return err
	}
	accounts, err := cnfg.BuildAccounts(plans)
	if err != nil {
		return err
	}
	opts, err := cnfg.Estimation.Options()
	if err != nil {
		return err
	}
	// A file is never checked against the accounts.
	opts.RequireRegisteredMeter = false

	ctx := context.Background()
	store := readings.NewMemStore()
	if meter == "" {
		meter = "csv"
	}
	if err := store.Append(ctx, meter, rows); err != nil {
		return err
	}

	engine, err := pricing.NewEngine(logger, store, plans, accounts, opts)
	if err != nil {
		return err
	}

	c, err := engine.CompareAll(ctx, meter)
	if errors.Is(err, pricing.ErrInsufficientData) {
		return fmt.Errorf("no readings in input")
	}
	if err != nil {
		return err
	}

	lim := maybe.None[int]()
	if limit >= 0 {
		lim = maybe.Some(limit)
	}
	ranked, err := pricing.Rank(c.Costs, lim)
	if err != nil {
		return err
	}

	return printComparison(os.Stdout, plans, c, ranked)
}

func printComparison(out io.Writer, plans *pricing.Plans, c pricing.Comparison, ranked []pricing.Cost) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "readings\t%d\n", c.Usage.Count())
	fmt.Fprintf(tw, "mean usage\t%s\n", c.Usage.Mean)
	if c.Current.IsValid() {
		fmt.Fprintf(tw, "current plan\t%s\n", c.Current.Value())
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "RANK\tPLAN\tSUPPLIER\tANNUAL COST")
	for i, cost := range ranked {
		supplier := ""
		if p, err := plans.Lookup(cost.PlanID); err == nil {
			supplier = p.Supplier
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, cost.PlanID, supplier, cost.Cost)
	}
	return tw.Flush()
}
