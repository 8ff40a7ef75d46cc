// Command validate re-checks a pipeline output collection against its
// boundary input: every boundary feature is present exactly once, risk labels
// agree with the rates under the configured schemes, rates agree with case
// counts and population, and features without data are uniformly null.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -output docs/covid_risk.geojson \
//	  -geometry data/mock/counties.geojson \
//	  -key-prefix 51
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/covid-risk-etl/internal/adapter/geometry"
	"github.com/couchcryptid/covid-risk-etl/internal/config"
	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

// rateTolerance absorbs the two-decimal rounding applied to output rates.
const rateTolerance = 0.005

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	output := flag.String("output", "docs/covid_risk.geojson", "pipeline output GeoJSON")
	geometryPath := flag.String("geometry", "", "boundary GeoJSON the pipeline read")
	idProperty := flag.String("id-property", "", "feature property holding the identifier (empty: feature id)")
	keyPrefix := flag.String("key-prefix", "51", "identifier prefix the pipeline filtered boundaries by")
	windowsFlag := flag.String("windows", "1,7,14,28", "computed windows")
	schemesFile := flag.String("schemes", "", "schemes YAML (default: built-in schemes)")
	tolerance := flag.Int64("tolerance", 0, "MONOTONIC_TOLERANCE the pipeline ran with; negative deltas are rejected only when 0")
	flag.Parse()

	if *geometryPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	windows, err := parseWindows(*windowsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	schemes := domain.DefaultSchemes()
	if *schemesFile != "" {
		if schemes, err = config.LoadSchemes(*schemesFile); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
	}

	os.Exit(run(*output, *geometryPath, *idProperty, *keyPrefix, windows, schemes, *tolerance))
}

func run(outputPath, geometryPath, idProperty, keyPrefix string, windows []int, schemes []domain.Scheme, tolerance int64) int {
	fmt.Println("=== COVID Risk Output Validation ===")
	fmt.Println()

	out, err := load(outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load output: %v\n", err)
		return 1
	}
	boundaries, err := load(geometryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load geometry: %v\n", err)
		return 1
	}
	boundaries = geometry.Filter(boundaries, idProperty, keyPrefix)

	phases := []*phase{
		validateCoverage(out, boundaries, idProperty),
		validateNulls(out, windows, schemes),
		validateRates(out, windows, tolerance),
		validateLabels(out, schemes),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	matched := 0
	for _, f := range out.Features {
		if f.Properties.MustBool(domain.PropHasData, false) {
			matched++
		}
	}
	fmt.Printf("Features: %d boundary, %d output, %d with data\n", len(boundaries.Features), len(out.Features), matched)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func load(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geometry.Decode(data)
}

func parseWindows(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		w, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid window %q", part)
		}
		out = append(out, w)
	}
	return out, domain.ValidateWindows(out)
}

// ── Phase 1: coverage ──

func validateCoverage(out, boundaries *geojson.FeatureCollection, idProperty string) *phase {
	p := &phase{name: "Phase 1: Boundary Coverage"}
	fmt.Println("Phase 1: Boundary Coverage")

	if len(out.Features) != len(boundaries.Features) {
		p.errorf("feature count: output=%d boundaries=%d", len(out.Features), len(boundaries.Features))
	}

	seen := make(map[string]int)
	for i, f := range out.Features {
		id, ok := f.Properties[domain.PropIdentifier].(string)
		if !ok {
			p.errorf("feature %d: missing %s", i, domain.PropIdentifier)
			continue
		}
		seen[id]++
		if f.Geometry == nil {
			p.errorf("%s: geometry dropped", id)
		}
	}
	for id, n := range seen {
		if n > 1 {
			p.errorf("%s: appears %d times", id, n)
		}
	}

	var missing []string
	for _, f := range boundaries.Features {
		if id := domain.FeatureKey(f, idProperty); seen[id] == 0 {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	for _, id := range missing {
		p.errorf("%s: boundary feature missing from output", id)
	}

	fmt.Printf("  %d output features, %d boundary features\n", len(out.Features), len(boundaries.Features))
	return p
}

// ── Phase 2: null uniformity ──

func attributeKeys(windows []int, schemes []domain.Scheme) []string {
	keys := []string{domain.PropReportDate, domain.PropCumulative, domain.PropPopulation, domain.PropDistrict}
	for _, w := range windows {
		keys = append(keys, domain.CasesProperty(w), domain.RateProperty(w))
	}
	for _, s := range schemes {
		keys = append(keys, domain.RiskProperty(s.Name))
	}
	return keys
}

func validateNulls(out *geojson.FeatureCollection, windows []int, schemes []domain.Scheme) *phase {
	p := &phase{name: "Phase 2: Attribute Presence"}
	fmt.Println("Phase 2: Attribute Presence")

	keys := attributeKeys(windows, schemes)
	empty := 0
	for _, f := range out.Features {
		id, _ := f.Properties[domain.PropIdentifier].(string)
		hasData, ok := f.Properties[domain.PropHasData].(bool)
		if !ok {
			p.errorf("%s: missing %s", id, domain.PropHasData)
			continue
		}
		for _, k := range keys {
			v, present := f.Properties[k]
			if !present {
				p.errorf("%s: missing key %s", id, k)
				continue
			}
			if !hasData && v != nil {
				p.errorf("%s: no data but %s=%v", id, k, v)
			}
		}
		if !hasData {
			empty++
			continue
		}
		if f.Properties[domain.PropReportDate] == nil {
			p.errorf("%s: has data but no report date", id)
		}
	}

	fmt.Printf("  %d features without data\n", empty)
	return p
}

// ── Phase 3: rates ──

// validateRates checks each rate against its case delta and population.
// Negative deltas only appear when the pipeline tolerated corrections.
func validateRates(out *geojson.FeatureCollection, windows []int, tolerance int64) *phase {
	p := &phase{name: "Phase 3: Rate Arithmetic"}
	fmt.Println("Phase 3: Rate Arithmetic")

	checked := 0
	for _, f := range out.Features {
		if !f.Properties.MustBool(domain.PropHasData, false) {
			continue
		}
		id, _ := f.Properties[domain.PropIdentifier].(string)
		pop, hasPop := f.Properties[domain.PropPopulation].(float64)
		for _, w := range windows {
			rate, hasRate := f.Properties[domain.RateProperty(w)].(float64)
			if hasRate != hasPop {
				p.errorf("%s: %s known=%v but population known=%v", id, domain.RateProperty(w), hasRate, hasPop)
				continue
			}
			if !hasRate {
				continue
			}
			cases, ok := f.Properties[domain.CasesProperty(w)].(float64)
			if !ok {
				p.errorf("%s: rate without %s", id, domain.CasesProperty(w))
				continue
			}
			if cases < 0 && tolerance == 0 {
				p.errorf("%s: negative %s=%v", id, domain.CasesProperty(w), cases)
			}
			want := cases * domain.Per100k / pop
			if math.Abs(want-rate) > rateTolerance+1e-9 {
				p.errorf("%s: %s=%v, want %.4f", id, domain.RateProperty(w), rate, want)
			}
			checked++
		}
	}

	fmt.Printf("  %d rates checked\n", checked)
	return p
}

// ── Phase 4: labels ──

func validateLabels(out *geojson.FeatureCollection, schemes []domain.Scheme) *phase {
	p := &phase{name: "Phase 4: Risk Label Consistency"}
	fmt.Println("Phase 4: Risk Label Consistency")

	checked := 0
	for _, f := range out.Features {
		if !f.Properties.MustBool(domain.PropHasData, false) {
			continue
		}
		id, _ := f.Properties[domain.PropIdentifier].(string)
		for _, s := range schemes {
			label, _ := f.Properties[domain.RiskProperty(s.Name)].(string)
			rate, known := f.Properties[domain.RateProperty(s.Window)].(float64)
			if !known {
				if label != domain.UnknownLabel {
					p.errorf("%s: %s=%q for unknown rate", id, s.Name, label)
				}
				continue
			}
			if !labelMatches(s, rate, label) {
				p.errorf("%s: %s=%q but rate %v classifies as %q", id, s.Name, label, rate, s.Classify(domain.KnownRate(rate)))
			}
			checked++
		}
	}

	fmt.Printf("  %d labels checked\n", checked)
	return p
}

// labelMatches accepts the label of any rate that rounds to the output value.
func labelMatches(s domain.Scheme, rate float64, label string) bool {
	for _, r := range []float64{rate, rate - rateTolerance, rate + rateTolerance} {
		if s.Classify(domain.KnownRate(r)) == label {
			return true
		}
	}
	return false
}
