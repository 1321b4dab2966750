package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joseph-ayodele/order-intake/internal/app"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/export"
)

func main() {
	var (
		selector = flag.String("order-type", "all", "comma-separated categories to run, or all")
		inmem    = flag.Bool("inmem", false, "use an in-memory SQLite database for the store and TMS tables")
		sqlite   = flag.String("sqlite", "", "use this SQLite file for the store and TMS tables")
		xlsxOut  = flag.String("xlsx", "", "write the batch report workbook to this path")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	opts := app.Options{SQLiteDSN: *sqlite}
	if *inmem {
		opts.SQLiteDSN = ":memory:"
	}
	if opts.SQLiteDSN == "" {
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid configuration", "error", err)
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, opts)
	if err != nil {
		logger.Error("failed to wire pipeline", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	reports, runErr := a.Orchestrator.RunSelection(ctx, *selector)
	for _, r := range reports {
		fmt.Println(r.Summary())
		for _, f := range r.Failures() {
			fmt.Printf("  FAILED %s: %s\n", f.BOL, strings.Join(f.Messages, "; "))
		}
	}

	if *xlsxOut != "" && len(reports) > 0 {
		data, err := export.NewService(logger).ReportsXLSX(reports)
		if err != nil {
			logger.Error("build report workbook", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*xlsxOut, data, 0o644); err != nil {
			logger.Error("write report workbook", "path", *xlsxOut, "error", err)
			os.Exit(1)
		}
		logger.Info("report written", "path", *xlsxOut, "bytes", len(data))
	}

	if runErr != nil {
		logger.Error("run failed", "error", runErr, "status", common.HTTPStatus(runErr))
		os.Exit(1)
	}
}
