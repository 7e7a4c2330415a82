package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/safeland/floodrisk-cli/internal/classify"
	"github.com/safeland/floodrisk-cli/internal/enrich"
	"github.com/safeland/floodrisk-cli/internal/geo"
)

func baseColumns(years []int) []string {
	cols := []string{"latitude", "longitude"}
	for _, y := range years {
		cols = append(cols, "flooded_"+strconv.Itoa(y))
	}
	return append(cols, "flood_history_count", "risk")
}

// WriteCSV writes the set in the base training layout: coordinates, per-year
// flood labels, count, and risk.
func WriteCSV(path string, set *Set) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(baseColumns(set.Years)); err != nil {
		return eris.Wrap(err, "dataset: write header")
	}

	for _, rec := range set.Records {
		row := []string{
			strconv.FormatFloat(rec.Latitude, 'f', 4, 64),
			strconv.FormatFloat(rec.Longitude, 'f', 4, 64),
		}
		for _, fl := range rec.Flooded {
			row = append(row, strconv.Itoa(fl))
		}
		row = append(row, strconv.Itoa(rec.Count), string(rec.Risk))
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "dataset: write record")
		}
	}

	w.Flush()
	return eris.Wrapf(w.Error(), "dataset: flush %s", path)
}

// ReadCSV loads a base-layout training file, verifying its header matches
// the expected flood years.
func ReadCSV(path string, years []int) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read header of %s", path)
	}
	expected := baseColumns(years)
	if len(header) != len(expected) {
		return nil, eris.Errorf("dataset: %s has %d columns, expected %d", path, len(header), len(expected))
	}
	for i, col := range expected {
		if header[i] != col {
			return nil, eris.Errorf("dataset: %s column %d is %q, expected %q", path, i, header[i], col)
		}
	}

	set := &Set{Years: years}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: read %s", path)
		}
		rec, err := parseRecord(row, len(years))
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: parse %s", path)
		}
		set.Records = append(set.Records, rec)
	}
	return set, nil
}

func parseRecord(row []string, yearCount int) (Record, error) {
	var rec Record
	var err error

	if rec.Latitude, err = strconv.ParseFloat(row[0], 64); err != nil {
		return rec, eris.Wrap(err, "latitude")
	}
	if rec.Longitude, err = strconv.ParseFloat(row[1], 64); err != nil {
		return rec, eris.Wrap(err, "longitude")
	}

	rec.Flooded = make([]int, yearCount)
	for i := 0; i < yearCount; i++ {
		if rec.Flooded[i], err = strconv.Atoi(row[2+i]); err != nil {
			return rec, eris.Wrap(err, "flood label")
		}
	}
	if rec.Count, err = strconv.Atoi(row[2+yearCount]); err != nil {
		return rec, eris.Wrap(err, "flood count")
	}

	rec.Risk = classify.Risk(row[3+yearCount])
	if !rec.Risk.Valid() {
		return rec, eris.Errorf("unknown risk label %q", rec.Risk)
	}
	return rec, nil
}

// WriteFeatureCSV writes fully enriched vectors with their risk labels in
// the schema the model trains on: the FeatureVector columns for the given
// version followed by a risk column.
func WriteFeatureCSV(path string, version int, years []int, vectors []enrich.FeatureVector, risks []classify.Risk) error {
	if len(vectors) != len(risks) {
		return eris.Errorf("dataset: %d vectors for %d risk labels", len(vectors), len(risks))
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append(enrich.Columns(version, years), "risk")
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "dataset: write header")
	}

	for i, vec := range vectors {
		row := append(vec.Row(version), string(risks[i]))
		if len(row) != len(header) {
			return eris.Errorf("dataset: vector %d has %d columns, header has %d", i, len(row), len(header))
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "dataset: write record")
		}
	}

	w.Flush()
	return eris.Wrapf(w.Error(), "dataset: flush %s", path)
}

// Coordinates extracts just the locations, for feeding bulk enrichment.
func (s *Set) Coordinates() []geo.Coordinate {
	out := make([]geo.Coordinate, len(s.Records))
	for i, rec := range s.Records {
		out[i] = geo.Coordinate{Lat: rec.Latitude, Lon: rec.Longitude}
	}
	return out
}
