package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/covidschooldata/pipeline/internal/joiner"
	"github.com/covidschooldata/pipeline/internal/nces"
	"github.com/covidschooldata/pipeline/internal/table"
	"github.com/covidschooldata/pipeline/pkg/config"
	"github.com/covidschooldata/pipeline/pkg/errors"
	"github.com/covidschooldata/pipeline/pkg/logger"
	"github.com/covidschooldata/pipeline/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to app config file")
	inputPath := flag.String("input", "", "case CSV to attach NCES identifiers to")
	outputPath := flag.String("output", "", "output CSV (default overwrites input)")
	lookupList := flag.String("lookups", "", "comma-separated reviewed lookup CSVs")
	districts := flag.Bool("districts", false, "join district identifiers instead of school identifiers")
	nameColumn := flag.String("namecol", "", "lookup name column (default SchoolName or DistrictName)")
	idColumn := flag.String("idcol", "", "lookup identifier column (default ncessch or leaid)")
	flag.Parse()

	if *inputPath == "" || *lookupList == "" {
		fmt.Fprintln(os.Stderr, "usage: idjoiner -input cases.csv -lookups reviewed1.csv,reviewed2.csv")
		os.Exit(errors.ExitConfig)
	}
	if *nameColumn == "" {
		if *districts {
			*nameColumn = joiner.ColDistrictName
		} else {
			*nameColumn = joiner.ColSchoolName
		}
	}
	if *idColumn == "" {
		if *districts {
			*idColumn = nces.ColLEAID
		} else {
			*idColumn = nces.ColNCESSch
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(errors.ExitConfig)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, *inputPath, *outputPath, *lookupList, *nameColumn, *idColumn, *districts); err != nil {
		slog.Error("idjoiner failed", "error", err)
		os.Exit(errors.ExitCode(err))
	}
}

func run(cfg *config.Config, inputPath, outputPath, lookupList, nameColumn, idColumn string, districts bool) error {
	t, err := table.ReadCSV(inputPath, table.ReadOptions{})
	if err != nil {
		return errors.Wrap(errors.ErrIO, err)
	}

	width := joiner.SchoolIDWidth
	if districts {
		width = joiner.DistrictIDWidth
	}
	paths := strings.Split(lookupList, ",")
	reviewed, err := joiner.ReadReviewedLookups(paths, nameColumn, idColumn, width)
	if err != nil {
		return errors.Wrap(errors.ErrIO, err)
	}
	slog.Info("loaded reviewed lookups",
		"files", len(paths), "pairs", len(reviewed.IDs), "drops", len(reviewed.Drops))

	var removed int
	if districts {
		removed, err = joiner.JoinDistrictIDs(t, reviewed)
	} else {
		removed, err = joiner.JoinSchoolIDs(t, reviewed)
	}
	if err != nil {
		return errors.Wrap(errors.ErrValidation, err)
	}
	if removed > 0 {
		slog.Info("removed reviewer-dropped rows", "rows", removed)
	}

	if outputPath == "" {
		outputPath = inputPath
	}
	if err := t.WriteCSV(outputPath); err != nil {
		return errors.Wrap(errors.ErrIO, err)
	}
	slog.Info("wrote output", "output", outputPath, "rows", t.NumRows())

	if cfg.Metrics.Enabled && removed > 0 {
		m := metrics.New()
		m.RowsDroppedTotal.WithLabelValues("all", "reviewed_drop").Add(float64(removed))
		if err := m.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName); err != nil {
			slog.Warn("metrics push failed", "error", err)
		}
	}
	return nil
}
