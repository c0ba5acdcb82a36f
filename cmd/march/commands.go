package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/bjt1997/march/internal/dcc"
	"github.com/bjt1997/march/internal/dist"
	"github.com/bjt1997/march/internal/forecast"
	"github.com/bjt1997/march/internal/garch"
)

func runFit(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.finish()

	m, f, err := a.fit(cmd)
	if err != nil {
		return err
	}
	s := f.Summary()
	out := cmd.OutOrStdout()
	if _, err := s.WriteTo(out); err != nil {
		return err
	}
	report, err := m.CheckBoundary()
	if err != nil {
		return err
	}
	if _, err := report.WriteTo(out); err != nil {
		return err
	}
	if file, _ := cmd.Flags().GetString("out"); file != "" {
		if err := writeFile(file, func(w io.Writer) error { return writeResults(w, s) }); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote results to %s\n", file)
	}
	return nil
}

func runBoundary(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.finish()

	m, _, err := a.fit(cmd)
	if err != nil {
		return err
	}
	report, err := m.CheckBoundary()
	if err != nil {
		return err
	}
	_, err = report.WriteTo(cmd.OutOrStdout())
	return err
}

func runForecast(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.finish()

	m, f, err := a.fit(cmd)
	if err != nil {
		return err
	}
	start := a.cfg.Forecast.Start
	if start < 0 {
		start = f.LastObs() - 1
	}
	res, err := m.Forecast(cmd.Context(), a.cfg.Forecast.Horizon, start, a.cfg.Forecast.Method)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	names := m.Panel().Names()
	fmt.Fprintf(out, "-------------- Covariance forecast -------------\n")
	fmt.Fprintf(out, "Origin:\t%d\nMethod:\t%s\n", res.Origin, res.Method)
	for _, s := range res.Steps {
		fmt.Fprintf(out, "h=%d\n", s.Horizon)
		for i := range names {
			fmt.Fprintf(out, "  %-10s", names[i])
			for j := range names {
				fmt.Fprintf(out, " %12.6f", s.Cov.At(i, j))
			}
			fmt.Fprintln(out)
		}
	}
	fmt.Fprintf(out, "----------------------------------------------\n")

	file, _ := cmd.Flags().GetString("out")
	if err := writeFile(file, func(w io.Writer) error { return writeForecast(w, names, res) }); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote forecast to %s\n", file)
	return nil
}

// runSimulate draws a panel from the configured univariate spec, using the
// default starting parameters for every asset, the DCC-A dynamics given by
// fit.init (or α=0.05, β=0.9, γ=0.02) and an equicorrelated target.
func runSimulate(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.finish()

	n, _ := cmd.Flags().GetInt("n")
	k, _ := cmd.Flags().GetInt("assets")
	rho, _ := cmd.Flags().GetFloat64("rho")
	seed, _ := cmd.Flags().GetUint64("seed")
	file, _ := cmd.Flags().GetString("out")
	if k < 2 {
		return fmt.Errorf("--assets must be at least 2, got %d", k)
	}

	d, err := dist.Parse(a.cfg.Model.Errors)
	if err != nil {
		return err
	}
	shape := d.StartingValues()
	c := dcc.Params{Alpha: 0.05, Beta: 0.9, Gamma: 0.02}
	if init := a.cfg.Fit.Init; len(init) >= dcc.NumParams {
		c = dcc.Unpack(init)
		if len(init) > dcc.NumParams && len(shape) > 0 {
			shape = init[dcc.NumParams:]
		}
	}

	corr := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			corr.SetSym(i, j, rho)
		}
		corr.SetSym(i, i, 1)
	}
	moments, err := forecast.TargetMoments(corr, d, shape, 50000, seed)
	if err != nil {
		return err
	}
	spec := a.cfg.ModelSpec()
	assets := make([]garch.Params, k)
	names := make([]string, k)
	for i := range assets {
		assets[i] = spec.StartingValues(0.05, 1)
		names[i] = fmt.Sprintf("asset%d", i+1)
	}
	model := &forecast.Model{Spec: spec, Dist: d, Shape: shape, Assets: assets, DCC: c, Moments: moments}
	cols, err := model.Simulate(n, 500, seed)
	if err != nil {
		return err
	}
	if err := writeFile(file, func(w io.Writer) error { return writePanel(w, names, cols) }); err != nil {
		return err
	}
	a.log.Info().Str("out", file).Int("n", n).Int("assets", k).Msg("simulated panel")
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d observations of %d assets to %s\n", n, k, file)
	return nil
}
