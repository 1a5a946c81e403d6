package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/covidschooldata/pipeline/internal/joiner"
	"github.com/covidschooldata/pipeline/internal/nces"
	"github.com/covidschooldata/pipeline/internal/table"
	"github.com/covidschooldata/pipeline/pkg/config"
	"github.com/covidschooldata/pipeline/pkg/errors"
	"github.com/covidschooldata/pipeline/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to app config file")
	inputPath := flag.String("input", "", "case CSV with NCES identifiers attached")
	outputPath := flag.String("output", "", "output CSV (default overwrites input)")
	schoolDemoPath := flag.String("schooldemo", "", "NCES school demographics CSV")
	districtDemoPath := flag.String("districtdemo", "", "NCES district demographics CSV")
	districts := flag.Bool("districts", false, "join district-level metadata only")
	flag.Parse()

	if *inputPath == "" || *districtDemoPath == "" || (!*districts && *schoolDemoPath == "") {
		fmt.Fprintln(os.Stderr,
			"usage: metajoiner -input cases.csv -schooldemo schools.csv -districtdemo districts.csv")
		os.Exit(errors.ExitConfig)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(errors.ExitConfig)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(*inputPath, *outputPath, *schoolDemoPath, *districtDemoPath, *districts); err != nil {
		slog.Error("metajoiner failed", "error", err)
		os.Exit(errors.ExitCode(err))
	}
}

func run(inputPath, outputPath, schoolDemoPath, districtDemoPath string, districts bool) error {
	t, err := table.ReadCSV(inputPath, table.ReadOptions{})
	if err != nil {
		return errors.Wrap(errors.ErrIO, err)
	}
	districtDemo, err := nces.ReadDistrictDemographics(districtDemoPath)
	if err != nil {
		return errors.Wrap(errors.ErrIO, err)
	}

	if districts {
		err = joiner.JoinDistrictMetadata(t, districtDemo)
	} else {
		var schoolDemo *table.Table
		schoolDemo, err = nces.ReadSchoolDemographics(schoolDemoPath)
		if err != nil {
			return errors.Wrap(errors.ErrIO, err)
		}
		err = joiner.JoinSchoolMetadata(t, schoolDemo, districtDemo)
	}
	if err != nil {
		return errors.Wrap(errors.ErrValidation, err)
	}

	if outputPath == "" {
		outputPath = inputPath
	}
	if err := t.WriteCSV(outputPath); err != nil {
		return errors.Wrap(errors.ErrIO, err)
	}
	slog.Info("wrote output", "output", outputPath, "rows", t.NumRows())
	return nil
}
