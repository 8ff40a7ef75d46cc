// Command genmock writes a deterministic synthetic snapshot of the three
// pipeline inputs so the pipeline can run offline: a VDH-format case CSV, a
// Latin-1 census county estimates CSV and a boundary GeoJSON. The generated
// series are checked with the domain package before anything is written.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -days 60 -end 2020-11-20
//
// then point CASES_URL, POPULATION_URL and GEOMETRY_URL at the files.
package main

import (
	"bytes"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

type locality struct {
	fips       string
	name       string
	county     string // census CTYNAME
	district   string
	population int64
	// dailyPer100k is the mean daily incidence at the start of the series.
	dailyPer100k float64
	hasCases     bool
	hasPop       bool
	hasGeometry  bool
}

// Bedford city (51515) reverted to town status in 2013: VDH still reports it
// but the census has no estimate. Clifton Forge (51560) has a boundary but no
// case rows.
var localities = []locality{
	{"51001", "Accomack", "Accomack County", "Eastern Shore", 32316, 9, true, true, true},
	{"51003", "Albemarle", "Albemarle County", "Blue Ridge", 109330, 12, true, true, true},
	{"51059", "Fairfax", "Fairfax County", "Fairfax", 1147532, 15, true, true, true},
	{"51087", "Henrico", "Henrico County", "Henrico", 330818, 18, true, true, true},
	{"51095", "James City", "James City County", "Peninsula", 76523, 6, true, true, true},
	{"51165", "Rockingham", "Rockingham County", "Central Shenandoah", 81948, 25, true, true, true},
	{"51199", "York", "York County", "Peninsula", 68280, 8, true, true, true},
	{"51550", "Chesapeake", "Chesapeake city", "Chesapeake", 244835, 14, true, true, true},
	{"51515", "Bedford City", "", "Central Virginia", 0, 10, true, false, false},
	{"51560", "Clifton Forge", "", "Alleghany", 0, 0, false, false, true},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock", "output directory")
	days := flag.Int("days", 60, "number of report dates")
	end := flag.String("end", "2020-11-20", "last report date (YYYY-MM-DD)")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	endDate, err := time.Parse(domain.DateLayout, *end)
	if err != nil {
		return fmt.Errorf("invalid -end: %w", err)
	}
	if *days < 1 {
		return fmt.Errorf("-days must be positive")
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x5eed))
	records := generateCases(rng, endDate, *days)

	// Guard against generator bugs: the output must pass the pipeline's own checks.
	if _, err := domain.NormalizeSeries(records, domain.DefaultWindows, 0); err != nil {
		return fmt.Errorf("generated series invalid: %w", err)
	}

	casesCSV, err := casesCSV(records)
	if err != nil {
		return err
	}
	popCSV, err := populationCSV()
	if err != nil {
		return err
	}
	geo, err := boundaries().MarshalJSON()
	if err != nil {
		return err
	}

	files := map[string][]byte{
		"cases.csv":        casesCSV,
		"population.csv":   popCSV,
		"counties.geojson": geo,
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}
	for name, data := range files {
		path := filepath.Join(*out, name)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		log.Printf("wrote %s (%d bytes)", path, len(data))
	}
	log.Printf("%d case rows, %d report dates, last %s", len(records), *days, endDate.Format(domain.DateLayout))
	return nil
}

// generateCases produces a cumulative series per locality with a slow upward
// trend and day-to-day noise.
func generateCases(rng *rand.Rand, end time.Time, days int) []domain.CaseRecord {
	start := end.AddDate(0, 0, -(days - 1))
	var out []domain.CaseRecord
	for _, l := range localities {
		if !l.hasCases {
			continue
		}
		pop := l.population
		if pop == 0 {
			pop = 6000
		}
		cumulative := int64(rng.IntN(50)) + pop/1000
		for d := 0; d < days; d++ {
			trend := 1 + float64(d)/float64(days)
			mean := l.dailyPer100k * trend * float64(pop) / domain.Per100k
			noise := rng.NormFloat64() * mean * 0.3
			if n := int64(mean + noise); n > 0 {
				cumulative += n
			}
			out = append(out, domain.CaseRecord{
				ID:         l.fips,
				Name:       l.name,
				District:   l.district,
				ReportDate: start.AddDate(0, 0, d),
				Cumulative: cumulative,
			})
		}
	}
	return out
}

func casesCSV(records []domain.CaseRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Report Date", "FIPS", "Locality", "VDH Health District", "Total Cases", "Hospitalizations", "Deaths"})
	for _, r := range records {
		_ = w.Write([]string{
			r.ReportDate.Format("01/02/2006"),
			r.ID,
			r.Name,
			r.District,
			fmt.Sprint(r.Cumulative),
			fmt.Sprint(r.Cumulative / 20),
			fmt.Sprint(r.Cumulative / 80),
		})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// populationCSV writes census county estimates in ISO-8859-1, including a
// non-Virginia row with a non-ASCII name.
func populationCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"SUMLEV", "REGION", "DIVISION", "STATE", "COUNTY", "STNAME", "CTYNAME", "POPESTIMATE2019"})
	_ = w.Write([]string{"040", "3", "5", "51", "000", "Virginia", "Virginia", "8535519"})
	for _, l := range localities {
		if !l.hasPop {
			continue
		}
		_ = w.Write([]string{"050", "3", "5", l.fips[:2], l.fips[2:], "Virginia", l.county, fmt.Sprint(l.population)})
	}
	_ = w.Write([]string{"050", "4", "8", "35", "013", "New Mexico", "Doña Ana County", "218195"})
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return charmap.ISO8859_1.NewEncoder().Bytes(buf.Bytes())
}

// boundaries lays the localities out as a grid of unit squares.
func boundaries() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	i := 0
	for _, l := range localities {
		if !l.hasGeometry {
			continue
		}
		x := -80.0 + float64(i%4)*1.2
		y := 36.8 + float64(i/4)*0.8
		f := geojson.NewFeature(orb.Polygon{{{x, y}, {x + 1, y}, {x + 1, y + 0.6}, {x, y + 0.6}, {x, y}}})
		f.ID = l.fips
		f.Properties["NAME"] = l.name
		fc.Append(f)
		i++
	}
	return fc
}
