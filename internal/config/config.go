package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

// Dataset formats understood by the extractors.
const (
	FormatVDH           = "vdh"
	FormatCovidTracking = "covidtracking"
	FormatCensusCounty  = "census-county"
	FormatCensusState   = "census-state"
)

const (
	defaultCasesURL      = "https://data.virginia.gov/api/views/bre9-aqqr/rows.csv?accessType=DOWNLOAD"
	defaultPopulationURL = "https://www2.census.gov/programs-surveys/popest/datasets/2010-2019/counties/totals/co-est2019-alldata.csv"
	defaultGeometryURL   = "https://raw.githubusercontent.com/plotly/datasets/master/geojson-counties-fips.json"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	CasesURL       string
	CasesFormat    string
	CasesCachePath string

	PopulationURL    string
	PopulationFormat string
	PopulationState  string
	PopulationColumn string

	GeometryURL string
	// GeometryIDProperty names the feature property holding the identifier;
	// empty means the feature id.
	GeometryIDProperty string
	// GeometryKeyPrefix keeps only features whose identifier starts with it.
	GeometryKeyPrefix string

	Windows            []int
	MonotonicTolerance int64
	SchemesFile        string
	Schemes            []domain.Scheme
	AsOfDate           time.Time
	RankWindow         int

	OutputDir       string
	MapCenter       [2]float64 // lat, lon
	MapZoom         int
	ChartLocalities []string
	ChartScheme     string

	FetchTimeout time.Duration
	StaleAfter   time.Duration

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	PushgatewayURL string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	windows, err := parseWindows(sharedcfg.EnvOrDefault("WINDOWS", "1,7,14,28"))
	if err != nil {
		return nil, err
	}

	tolerance, err := strconv.ParseInt(sharedcfg.EnvOrDefault("MONOTONIC_TOLERANCE", "0"), 10, 64)
	if err != nil || tolerance < 0 {
		return nil, errors.New("invalid MONOTONIC_TOLERANCE")
	}

	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	staleAfter, err := parsePositiveDuration("STALE_AFTER", "24h")
	if err != nil {
		return nil, err
	}

	asOf, err := parseDate(os.Getenv("AS_OF_DATE"))
	if err != nil {
		return nil, fmt.Errorf("invalid AS_OF_DATE: %w", err)
	}

	rankWindow, err := strconv.Atoi(sharedcfg.EnvOrDefault("RANK_WINDOW", "28"))
	if err != nil || rankWindow < 0 {
		return nil, errors.New("invalid RANK_WINDOW")
	}

	center, err := parseCenter(sharedcfg.EnvOrDefault("MAP_CENTER", "37.9,-77.9"))
	if err != nil {
		return nil, err
	}
	zoom, err := strconv.Atoi(sharedcfg.EnvOrDefault("MAP_ZOOM", "7"))
	if err != nil || zoom < 0 {
		return nil, errors.New("invalid MAP_ZOOM")
	}

	cfg := &Config{
		CasesURL:       sharedcfg.EnvOrDefault("CASES_URL", defaultCasesURL),
		CasesFormat:    sharedcfg.EnvOrDefault("CASES_FORMAT", FormatVDH),
		CasesCachePath: sharedcfg.EnvOrDefault("CASES_CACHE_PATH", "VA_vdh_casedata.csv"),

		PopulationURL:    sharedcfg.EnvOrDefault("POPULATION_URL", defaultPopulationURL),
		PopulationFormat: sharedcfg.EnvOrDefault("POPULATION_FORMAT", FormatCensusCounty),
		PopulationState:  sharedcfg.EnvOrDefault("POPULATION_STATE", "Virginia"),
		PopulationColumn: sharedcfg.EnvOrDefault("POPULATION_COLUMN", "POPESTIMATE2019"),

		GeometryURL:        sharedcfg.EnvOrDefault("GEOMETRY_URL", defaultGeometryURL),
		GeometryIDProperty: os.Getenv("GEOMETRY_ID_PROPERTY"),
		GeometryKeyPrefix:  lookupOrDefault("GEOMETRY_KEY_PREFIX", "51"),

		Windows:            windows,
		MonotonicTolerance: tolerance,
		SchemesFile:        os.Getenv("SCHEMES_FILE"),
		AsOfDate:           asOf,
		RankWindow:         rankWindow,

		OutputDir:       sharedcfg.EnvOrDefault("OUTPUT_DIR", "docs"),
		MapCenter:       center,
		MapZoom:         zoom,
		ChartLocalities: parseList(os.Getenv("CHART_LOCALITIES")),
		ChartScheme:     sharedcfg.EnvOrDefault("CHART_SCHEME", domain.SchemeSchoolTransmission),

		FetchTimeout: fetchTimeout,
		StaleAfter:   staleAfter,

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "covid-risk-features"),

		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),

		LogLevel:  sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
	}
	switch cfg.CasesFormat {
	case FormatVDH, FormatCovidTracking:
	default:
		return nil, fmt.Errorf("invalid CASES_FORMAT %q", cfg.CasesFormat)
	}
	switch cfg.PopulationFormat {
	case FormatCensusCounty, FormatCensusState:
	default:
		return nil, fmt.Errorf("invalid POPULATION_FORMAT %q", cfg.PopulationFormat)
	}
	if cfg.CasesURL == "" {
		return nil, errors.New("CASES_URL is required")
	}
	if cfg.PopulationURL == "" {
		return nil, errors.New("POPULATION_URL is required")
	}
	if cfg.GeometryURL == "" {
		return nil, errors.New("GEOMETRY_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}

	cfg.Schemes = domain.DefaultSchemes()
	if cfg.SchemesFile != "" {
		schemes, err := LoadSchemes(cfg.SchemesFile)
		if err != nil {
			return nil, err
		}
		cfg.Schemes = schemes
	}
	if err := domain.ValidateSchemes(cfg.Schemes, cfg.Windows); err != nil {
		return nil, err
	}
	if cfg.RankWindow > 0 && !containsInt(cfg.Windows, cfg.RankWindow) {
		return nil, fmt.Errorf("RANK_WINDOW %d is not among WINDOWS", cfg.RankWindow)
	}
	if len(cfg.ChartLocalities) > 0 {
		if _, err := domain.FindScheme(cfg.Schemes, cfg.ChartScheme); err != nil {
			return nil, fmt.Errorf("CHART_SCHEME: %w", err)
		}
	}

	return cfg, nil
}

func parseWindows(s string) ([]int, error) {
	var windows []int
	for _, part := range parseList(s) {
		w, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid WINDOWS entry %q", part)
		}
		windows = append(windows, w)
	}
	if err := domain.ValidateWindows(windows); err != nil {
		return nil, fmt.Errorf("invalid WINDOWS: %w", err)
	}
	return windows, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseDate accepts YYYY-MM-DD or the compact YYYYMMDD used by the COVID
// Tracking Project. Empty means no as-of date.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{domain.DateLayout, "20060102"} {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseCenter(s string) ([2]float64, error) {
	parts := parseList(s)
	if len(parts) != 2 {
		return [2]float64{}, errors.New("invalid MAP_CENTER, want lat,lon")
	}
	var out [2]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return [2]float64{}, errors.New("invalid MAP_CENTER, want lat,lon")
		}
		out[i] = v
	}
	return out, nil
}

// lookupOrDefault distinguishes an unset variable from one set to empty,
// which clears the default.
func lookupOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
