package panel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bjt1997/march/internal/errs"
)

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04:05-07:00"}

// LoadCSV reads a panel from a CSV file whose header row names the series.
// A leading column headed "date", "time" or left blank is parsed as the time
// index.
func LoadCSV(filename string) (*Panel, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open returns file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV is LoadCSV over an arbitrary reader.
func ReadCSV(r io.Reader) (*Panel, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	rawData, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read returns csv: %w", err)
	}
	if len(rawData) < 2 {
		return nil, errs.Data("panel.ReadCSV", "rows", "header plus at least one observation")
	}

	header := rawData[0]
	first := 0
	hasDates := false
	switch strings.ToLower(strings.TrimSpace(header[0])) {
	case "", "date", "time", "datetime", "timestamp":
		hasDates = true
		first = 1
	}
	names := make([]string, 0, len(header)-first)
	for _, h := range header[first:] {
		names = append(names, strings.TrimSpace(h))
	}

	rows := rawData[1:]
	cols := make([][]float64, len(names))
	for i := range cols {
		cols[i] = make([]float64, len(rows))
	}
	var dates []time.Time
	if hasDates {
		dates = make([]time.Time, len(rows))
	}
	for t, row := range rows {
		if len(row) != len(header) {
			return nil, errs.Data("panel.ReadCSV", "row", fmt.Sprintf("%d fields", len(header))).AtIndex(t)
		}
		if hasDates {
			d, err := parseDate(row[0])
			if err != nil {
				return nil, errs.Data("panel.ReadCSV", "date", "parseable date").AtIndex(t).Wrap(err)
			}
			dates[t] = d
		}
		for i, cell := range row[first:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, errs.Data("panel.ReadCSV", names[i], "numeric value").AtIndex(t).Wrap(err)
			}
			cols[i][t] = v
		}
	}
	return New(names, dates, cols)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range dateLayouts {
		var d time.Time
		if d, err = time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, err
}
