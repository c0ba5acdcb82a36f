package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/bjt1997/march"
)

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// writeFile creates filename and hands it to write.
func writeFile(filename string, write func(io.Writer) error) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create %s: %w", filename, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeResults writes one row per parameter followed by the fit statistics.
func writeResults(w io.Writer, s *march.Summary) error {
	cw := csv.NewWriter(w)
	records := [][]string{{"param", "estimate", "std_err"}}
	for _, p := range s.Params {
		records = append(records, []string{p.Name, formatFloat(p.Estimate), formatFloat(p.StdErr)})
	}
	records = append(records,
		[]string{"loglik", formatFloat(s.LogLik), ""},
		[]string{"aic", formatFloat(s.AIC), ""},
		[]string{"bic", formatFloat(s.BIC), ""},
		[]string{"nobs", strconv.Itoa(s.NumObs), ""},
	)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// writeForecast writes one row per step with the upper triangle of the
// covariance forecast and, for simulations, its standard errors.
func writeForecast(w io.Writer, names []string, res *march.ForecastResult) error {
	cw := csv.NewWriter(w)
	n := len(names)
	hdr := []string{"origin", "horizon"}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			hdr = append(hdr, "cov_"+names[i]+"_"+names[j])
		}
	}
	if res.Method == march.Simulation {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				hdr = append(hdr, "se_"+names[i]+"_"+names[j])
			}
		}
	}
	records := [][]string{hdr}
	for _, s := range res.Steps {
		row := []string{strconv.Itoa(res.Origin), strconv.Itoa(s.Horizon)}
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				row = append(row, formatFloat(s.Cov.At(i, j)))
			}
		}
		if s.StdErr != nil {
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					row = append(row, formatFloat(s.StdErr.At(i, j)))
				}
			}
		}
		records = append(records, row)
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write forecast: %w", err)
	}
	return nil
}

// writePanel writes simulated returns with the series names as header, in
// the layout LoadCSV reads.
func writePanel(w io.Writer, names []string, columns [][]float64) error {
	cw := csv.NewWriter(w)
	records := [][]string{names}
	for t := range columns[0] {
		row := make([]string, len(columns))
		for i := range columns {
			row[i] = formatFloat(columns[i][t])
		}
		records = append(records, row)
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write panel: %w", err)
	}
	return nil
}
