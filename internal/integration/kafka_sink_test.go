//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/covid-risk-etl/internal/adapter/dataset"
	"github.com/couchcryptid/covid-risk-etl/internal/adapter/geometry"
	"github.com/couchcryptid/covid-risk-etl/internal/adapter/kafka"
	"github.com/couchcryptid/covid-risk-etl/internal/adapter/render"
	"github.com/couchcryptid/covid-risk-etl/internal/adapter/source"
	"github.com/couchcryptid/covid-risk-etl/internal/config"
	"github.com/couchcryptid/covid-risk-etl/internal/domain"
	"github.com/couchcryptid/covid-risk-etl/internal/observability"
	"github.com/couchcryptid/covid-risk-etl/internal/pipeline"
)

const testTopic = "test-covid-risk-features"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("covid-risk-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

// writeInputs writes a two-locality snapshot plus one boundary without data.
func writeInputs(t *testing.T, dir string) (cases, population, boundaries string) {
	t.Helper()
	cases = filepath.Join(dir, "cases.csv")
	population = filepath.Join(dir, "population.csv")
	boundaries = filepath.Join(dir, "counties.geojson")

	require.NoError(t, os.WriteFile(cases, []byte(
		"Report Date,FIPS,Locality,VDH Health District,Total Cases\n"+
			"11/17/2020,51199,York,Peninsula,10\n"+
			"11/18/2020,51199,York,Peninsula,12\n"+
			"11/19/2020,51199,York,Peninsula,15\n"+
			"11/20/2020,51199,York,Peninsula,20\n"+
			"11/20/2020,51095,James City,Peninsula,300\n",
	), 0o644))
	require.NoError(t, os.WriteFile(population, []byte(
		"SUMLEV,STATE,COUNTY,STNAME,CTYNAME,POPESTIMATE2019\n"+
			"050,51,199,Virginia,York County,100000\n"+
			"050,51,095,Virginia,James City County,76523\n",
	), 0o644))

	fc := geojson.NewFeatureCollection()
	for i, id := range []string{"51199", "51095", "51001"} {
		x := float64(i)
		f := geojson.NewFeature(orb.Polygon{{{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0}}})
		f.ID = id
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(boundaries, data, 0o644))
	return cases, population, boundaries
}

// TestPipelineToKafka runs the whole pipeline against local files and reads
// every published feature back from the topic.
func TestPipelineToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	dir := t.TempDir()
	casesPath, popPath, geoPath := writeInputs(t, dir)
	cfg := &config.Config{
		CasesURL:         casesPath,
		CasesFormat:      config.FormatVDH,
		PopulationURL:    popPath,
		PopulationFormat: config.FormatCensusCounty,
		PopulationState:  "Virginia",
		PopulationColumn: "POPESTIMATE2019",
		GeometryURL:      geoPath,
		Windows:          domain.DefaultWindows,
		Schemes:          domain.DefaultSchemes(),
		RankWindow:       28,
		OutputDir:        filepath.Join(dir, "out"),
		KafkaBrokers:     []string{broker},
		KafkaTopic:       testTopic,
	}

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	fetcher := source.NewFetcher(10*time.Second, logger, metrics)
	cache := source.NewCache(fetcher, 24*time.Hour, logger, metrics)
	writer := kafka.NewWriter(cfg, logger)
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(
		dataset.NewCaseExtractor(cfg, cache, logger, metrics),
		dataset.NewPopulationExtractor(cfg, fetcher, logger, metrics),
		geometry.NewProvider(cfg, fetcher, logger, metrics),
		[]pipeline.Loader{render.NewGeoJSONWriter(cfg, logger), writer},
		pipeline.Options{
			Windows:      cfg.Windows,
			Schemes:      cfg.Schemes,
			RankWindow:   cfg.RankWindow,
			RateDecimals: 2,
		},
		logger,
		metrics,
	)
	report, err := p.Run(ctx)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, render.GeoJSONFile))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	got := make(map[string]kafkago.Message)
	for len(got) < 3 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from topic")
		got[string(msg.Key)] = msg
	}

	york := got["51199"]
	headers := make(map[string]string)
	for _, h := range york.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, report.RunID, headers[kafka.HeaderRunID])
	assert.Equal(t, "2020-11-20", headers[kafka.HeaderReportDate])
	assert.Equal(t, "true", headers[kafka.HeaderHasData])

	var f geojson.Feature
	require.NoError(t, json.Unmarshal(york.Value, &f))
	assert.Equal(t, 5.0, f.Properties[domain.RateProperty(1)])
	assert.Equal(t, 20.0, f.Properties[domain.RateProperty(7)])

	var empty geojson.Feature
	require.NoError(t, json.Unmarshal(got["51001"].Value, &empty))
	assert.Equal(t, false, empty.Properties[domain.PropHasData])
	assert.Nil(t, empty.Properties[domain.RateProperty(14)])
}
