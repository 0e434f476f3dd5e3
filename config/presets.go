package config

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/dargueta/scull/errors"
	"github.com/dargueta/scull/quantumset"
	"github.com/gocarina/gocsv"
)

// Preset is a named, predefined device geometry.
type Preset struct {
	Name    string `csv:"name"`
	Slug    string `csv:"slug"`
	Quantum int    `csv:"quantum"`
	QSet    int    `csv:"qset"`
	Notes   string `csv:"notes"`
}

// Geometry returns the store geometry the preset describes.
func (p Preset) Geometry() quantumset.Geometry {
	return quantumset.Geometry{Quantum: p.Quantum, QSet: p.QSet}
}

//go:embed presets.csv
var presetsRawCSV string
var presets map[string]Preset

// LookupPreset returns the preset with the given slug. Unknown slugs give an
// error with the errno code EINVAL.
func LookupPreset(slug string) (Preset, error) {
	preset, ok := presets[slug]
	if ok {
		return preset, nil
	}
	return Preset{}, errors.NewWithMessage(
		errors.EINVAL, fmt.Sprintf("no geometry preset exists with slug %q", slug))
}

// Presets returns all predefined presets, sorted by slug.
func Presets() []Preset {
	result := make([]Preset, 0, len(presets))
	for _, preset := range presets {
		result = append(result, preset)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Slug < result[j].Slug })
	return result
}

func init() {
	csvReader := csv.NewReader(strings.NewReader(presetsRawCSV))
	csvReader.Comma = '|'

	var rows []Preset
	err := gocsv.UnmarshalCSV(csvReader, &rows)
	if err != nil {
		panic(fmt.Errorf("failed to decode geometry presets: %w", err))
	}

	presets = make(map[string]Preset, len(rows))
	for i, row := range rows {
		_, exists := presets[row.Slug]
		if exists {
			panic(fmt.Errorf("duplicate definition for preset %q found on row %d", row.Slug, i+1))
		}
		err = row.Geometry().Validate()
		if err != nil {
			panic(fmt.Errorf("preset %q on row %d: %w", row.Slug, i+1, err))
		}
		presets[row.Slug] = row
	}
}
