// Command covidrisk computes per-capita COVID-19 case rates for Virginia
// localities (or U.S. states), classifies them into CDC risk tiers and writes
// a joined GeoJSON collection, choropleth maps and time-series charts.
//
// Usage:
//
//	covidrisk run
//	covidrisk classify --scheme school-transmission --rate 37.5
//	covidrisk schemes
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/couchcryptid/covid-risk-etl/internal/adapter/dataset"
	"github.com/couchcryptid/covid-risk-etl/internal/adapter/geometry"
	kafkaadapter "github.com/couchcryptid/covid-risk-etl/internal/adapter/kafka"
	"github.com/couchcryptid/covid-risk-etl/internal/adapter/render"
	"github.com/couchcryptid/covid-risk-etl/internal/adapter/source"
	"github.com/couchcryptid/covid-risk-etl/internal/config"
	"github.com/couchcryptid/covid-risk-etl/internal/domain"
	"github.com/couchcryptid/covid-risk-etl/internal/observability"
	"github.com/couchcryptid/covid-risk-etl/internal/pipeline"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "covidrisk",
		Usage:   "Per-capita COVID-19 case rates and CDC risk tiers by locality",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file loaded before reading configuration (missing file is ignored)",
			},
		},
		Before: func(c *cli.Context) error {
			_ = godotenv.Load(c.String("env-file"))
			return nil
		},
		Commands: []*cli.Command{
			runCommand(),
			classifyCommand(),
			schemesCommand(),
		},
		Action: runPipeline,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Fetch inputs, compute rates and write every output",
		Action: runPipeline,
	}
}

func runPipeline(_ *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher := source.NewFetcher(cfg.FetchTimeout, logger, metrics)
	cache := source.NewCache(fetcher, cfg.StaleAfter, logger, metrics)

	loaders := []pipeline.Loader{
		render.NewGeoJSONWriter(cfg, logger),
		render.NewMapWriter(cfg, logger),
		render.NewChartWriter(cfg, logger),
	}
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		loaders = append(loaders, writer)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(
		dataset.NewCaseExtractor(cfg, cache, logger, metrics),
		dataset.NewPopulationExtractor(cfg, fetcher, logger, metrics),
		geometry.NewProvider(cfg, fetcher, logger, metrics),
		loaders,
		pipeline.Options{
			Windows:      cfg.Windows,
			Tolerance:    cfg.MonotonicTolerance,
			Schemes:      cfg.Schemes,
			IDProperty:   cfg.GeometryIDProperty,
			AsOf:         cfg.AsOfDate,
			RankWindow:   cfg.RankWindow,
			RateDecimals: 2,
		},
		logger,
		metrics,
	)

	_, runErr := p.Run(ctx)
	if runErr != nil {
		logger.Error("pipeline failed", "error", runErr)
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(context.Background(), cfg.PushgatewayURL, cfg.CasesFormat); err != nil {
			logger.Error("metrics push failed", "error", err)
		}
	}
	return runErr
}

func classifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Print the risk label for a per-100k rate",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "scheme",
				Usage: "scheme name; all schemes when empty",
			},
			&cli.StringFlag{
				Name:     "rate",
				Usage:    "new cases per 100k over the scheme window, or \"unknown\"",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rate := domain.UnknownRate()
			if s := c.String("rate"); s != "unknown" {
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return fmt.Errorf("invalid --rate %q", s)
				}
				rate = domain.KnownRate(v)
			}

			schemes := cfg.Schemes
			if name := c.String("scheme"); name != "" {
				s, err := domain.FindScheme(cfg.Schemes, name)
				if err != nil {
					return err
				}
				schemes = []domain.Scheme{s}
			}
			for _, s := range schemes {
				fmt.Fprintf(c.App.Writer, "%s\t%s\n", s.Name, s.Classify(rate))
			}
			return nil
		},
	}
}

func schemesCommand() *cli.Command {
	return &cli.Command{
		Name:  "schemes",
		Usage: "List the configured risk schemes and their thresholds",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			for _, s := range cfg.Schemes {
				fmt.Fprintf(tw, "%s (%dd)\t%s\n", s.Name, s.Window, s.Caption)
				for _, b := range s.Buckets {
					fmt.Fprintf(tw, "  < %v\t%s\t%s\n", b.UpperBound, b.Label, b.Color)
				}
			}
			return tw.Flush()
		},
	}
}
