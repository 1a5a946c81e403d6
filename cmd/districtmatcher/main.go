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

	"github.com/covidschooldata/pipeline/internal/joiner"
	"github.com/covidschooldata/pipeline/internal/linkage/matcher"
	"github.com/covidschooldata/pipeline/internal/matchrun"
	"github.com/covidschooldata/pipeline/internal/nces"
	"github.com/covidschooldata/pipeline/internal/table"
	"github.com/covidschooldata/pipeline/pkg/config"
	"github.com/covidschooldata/pipeline/pkg/errors"
	"github.com/covidschooldata/pipeline/pkg/logger"
	"github.com/covidschooldata/pipeline/pkg/metrics"
	"github.com/covidschooldata/pipeline/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to app config file")
	inputPath := flag.String("input", "", "case CSV with district names to resolve")
	districtsPath := flag.String("districts", "", "NCES district registry CSV")
	outputPath := flag.String("output", "", "output CSV (default <input>_with_nces_matches.csv)")
	stateColumn := flag.String("statecol", "StateAbbrev", "input column holding the state abbreviation")
	nameColumn := flag.String("namecol", joiner.ColDistrictName, "input column holding the district name")
	flag.Parse()

	if *inputPath == "" || *districtsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: districtmatcher -input cases.csv -districts registry.csv")
		os.Exit(errors.ExitConfig)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(errors.ExitConfig)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *inputPath, *districtsPath, *outputPath, *stateColumn, *nameColumn); err != nil {
		slog.Error("districtmatcher failed", "error", err)
		os.Exit(errors.ExitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config, inputPath, districtsPath, outputPath, stateColumn, nameColumn string) error {
	src, err := table.ReadCSV(inputPath, table.ReadOptions{})
	if err != nil {
		return errors.Wrap(errors.ErrIO, err)
	}
	registry, err := nces.ReadDistricts(districtsPath)
	if err != nil {
		return errors.Wrap(errors.ErrIO, err)
	}
	slog.Info("loaded inputs", "cases", src.NumRows(), "registry", registry.NumRows())

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	var cache matcher.Cache
	if cfg.Redis.Enabled {
		mc, err := redis.NewMatchCache(cfg.Redis)
		if err != nil {
			return errors.Wrap(errors.ErrIO, err)
		}
		defer mc.Close()
		cache = mc
	}

	matched, err := matchrun.Run(ctx, src, registry, matchrun.Options{
		StateColumn: stateColumn,
		QueryColumn: nameColumn,
		RefField:    nces.ColDistrictName,
		Matching: matcher.Config{
			Threshold: cfg.Matching.Threshold,
			TopN:      cfg.Matching.TopN,
		},
		Cache:   cache,
		Metrics: m,
	})
	if err != nil {
		return err
	}

	if outputPath == "" {
		outputPath = strings.TrimSuffix(inputPath, ".csv") + "_with_nces_matches.csv"
	}
	if err := matched.WriteCSV(outputPath); err != nil {
		return errors.Wrap(errors.ErrIO, err)
	}
	slog.Info("wrote matches", "output", outputPath, "rows", matched.NumRows())

	if m != nil {
		if err := m.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
			slog.Warn("metrics push failed", "error", err)
		}
	}
	return nil
}
