package config

import (
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

// schemesFile is the YAML layout of SCHEMES_FILE:
//
//	schemes:
//	  - name: school-transmission
//	    window: 14
//	    caption: New Cases/14days/100k
//	    source: https://www.cdc.gov/...
//	    buckets:
//	      - {below: 5, label: Lowest risk of transmission in schools, color: blue}
//	      - {label: Highest risk of transmission in schools, color: red}
//
// A bucket without "below" is unbounded and must come last.
type schemesFile struct {
	Schemes []schemeEntry `yaml:"schemes"`
}

type schemeEntry struct {
	Name    string        `yaml:"name"`
	Window  int           `yaml:"window"`
	Title   string        `yaml:"title"`
	Caption string        `yaml:"caption"`
	Source  string        `yaml:"source"`
	Buckets []bucketEntry `yaml:"buckets"`
}

type bucketEntry struct {
	Below *float64 `yaml:"below"`
	Label string   `yaml:"label"`
	Color string   `yaml:"color"`
}

// LoadSchemes reads threshold tables from a YAML file. Each scheme is
// validated; the window list is checked later against WINDOWS.
func LoadSchemes(path string) ([]domain.Scheme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schemes file: %w", err)
	}
	return ParseSchemes(data)
}

// ParseSchemes decodes the YAML scheme layout.
func ParseSchemes(data []byte) ([]domain.Scheme, error) {
	var file schemesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse schemes: %w", err)
	}
	if len(file.Schemes) == 0 {
		return nil, &domain.ConfigurationError{Field: "schemes", Reason: "no schemes defined"}
	}

	out := make([]domain.Scheme, 0, len(file.Schemes))
	for _, e := range file.Schemes {
		s := domain.Scheme{
			Name:    e.Name,
			Window:  e.Window,
			Title:   e.Title,
			Caption: e.Caption,
			Source:  e.Source,
		}
		for _, b := range e.Buckets {
			bound := math.Inf(1)
			if b.Below != nil {
				bound = *b.Below
			}
			s.Buckets = append(s.Buckets, domain.Bucket{UpperBound: bound, Label: b.Label, Color: b.Color})
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
