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

	"github.com/covidschooldata/pipeline/internal/mapper"
	"github.com/covidschooldata/pipeline/pkg/config"
	"github.com/covidschooldata/pipeline/pkg/errors"
	"github.com/covidschooldata/pipeline/pkg/logger"
	"github.com/covidschooldata/pipeline/pkg/metrics"
	"github.com/covidschooldata/pipeline/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to app config file")
	recipePath := flag.String("recipe", "configs/recipe.yaml", "path to the state recipe file")
	reportPath := flag.String("report", "", "write the audit report CSV here as well as stdout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(errors.ExitConfig)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *recipePath, *reportPath); err != nil {
		slog.Error("statemapper failed", "error", err)
		os.Exit(errors.ExitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config, recipePath, reportPath string) error {
	recipe, err := mapper.LoadRecipe(recipePath)
	if err != nil {
		return errors.Wrap(errors.ErrConfig, err)
	}
	slog.Info("loaded recipe", "states", len(recipe.States))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	engine := mapper.New(mapper.Options{
		RequiredColumns: recipe.RequiredColumns,
		Parallelism:     cfg.Parallelism,
		Metrics:         m,
	})
	results, err := engine.ProcessAll(ctx, recipe)
	if err != nil {
		return err
	}

	var reports []mapper.ColumnReport
	for _, r := range results {
		reports = append(reports, r.Report...)
	}
	if err := mapper.RenderReport(os.Stdout, reports); err != nil {
		return errors.Wrap(errors.ErrIO, err)
	}
	if reportPath != "" {
		if err := mapper.ReportTable(reports).WriteCSV(reportPath); err != nil {
			return errors.Wrap(errors.ErrIO, err)
		}
	}

	if cfg.Postgres.Enabled {
		if err := saveToWarehouse(ctx, cfg, recipe, results, reports); err != nil {
			return err
		}
	}
	if m != nil {
		if err := m.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
			slog.Warn("metrics push failed", "error", err)
		}
	}
	return nil
}

func saveToWarehouse(ctx context.Context, cfg *config.Config, recipe *mapper.Recipe, results []*mapper.Result, reports []mapper.ColumnReport) error {
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		return errors.Wrap(errors.ErrIO, err)
	}
	defer pg.Close()

	for i, r := range results {
		name := "cases_" + strings.ToLower(recipe.States[i].Abbreviation)
		if err := pg.SaveTable(ctx, name, r.Table); err != nil {
			return errors.Wrap(errors.ErrIO, err)
		}
		slog.Info("saved state table", "table", name, "rows", r.Table.NumRows())
	}
	if err := pg.SaveTable(ctx, "column_report", mapper.ReportTable(reports)); err != nil {
		return errors.Wrap(errors.ErrIO, err)
	}
	return nil
}
