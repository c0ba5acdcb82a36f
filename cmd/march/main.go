/*
march fits a multivariate ARCH model (GARCH volatilities with asymmetric
dynamic conditional correlation) to a CSV panel of returns, reports the fit
and its boundary conditions, and forecasts the covariance matrix.
*/
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bjt1997/march"
	"github.com/bjt1997/march/internal/config"
	"github.com/bjt1997/march/internal/logger"
	"github.com/bjt1997/march/internal/metrics"
)

const version = "v0.3.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "march",
		Short:         "Multivariate GARCH / DCC-A estimation and covariance forecasting",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "YAML configuration file (defaults apply when omitted)")
	root.PersistentFlags().String("log-level", "", "Override log.level (debug|info|warn|error)")

	fitCmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit the model and print the summary and boundary report",
		RunE:  runFit,
	}
	forecastCmd := &cobra.Command{
		Use:   "forecast",
		Short: "Fit the model and forecast the covariance matrix",
		RunE:  runForecast,
	}
	boundaryCmd := &cobra.Command{
		Use:   "boundary",
		Short: "Fit the model and check its stationarity constraints",
		RunE:  runBoundary,
	}
	for _, cmd := range []*cobra.Command{fitCmd, forecastCmd, boundaryCmd} {
		cmd.Flags().StringP("data", "i", "", "CSV file of returns, one column per asset (required)")
		cmd.Flags().Float64("scale", 1, "Multiply every return by this factor before fitting")
		cmd.Flags().Int("last-obs", -1, "Override fit.last_obs")
		_ = cmd.MarkFlagRequired("data")
	}
	fitCmd.Flags().StringP("out", "o", "", "Write parameter estimates to this CSV file")
	forecastCmd.Flags().StringP("out", "o", "forecast.csv", "Write the forecast to this CSV file")
	forecastCmd.Flags().Int("horizon", 0, "Override forecast.horizon")
	forecastCmd.Flags().Int("start", -2, "Override forecast.start")
	forecastCmd.Flags().String("method", "", "Override forecast.method (simulation|analytic)")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a return panel from the configured model",
		RunE:  runSimulate,
	}
	simulateCmd.Flags().StringP("out", "o", "simulated.csv", "Write the simulated panel to this CSV file")
	simulateCmd.Flags().Int("n", 2700, "Number of observations")
	simulateCmd.Flags().Int("assets", 2, "Number of assets")
	simulateCmd.Flags().Float64("rho", 0.5, "Target correlation between every pair of assets")
	simulateCmd.Flags().Uint64("seed", 1, "Random seed")

	root.AddCommand(fitCmd, forecastCmd, boundaryCmd, simulateCmd)
	return root
}

// app is the state shared by every command.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	closer  io.Closer
	metrics *metrics.Recorder
}

func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, closer, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, closer: closer, metrics: metrics.New("march")}, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.Default()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if f := cmd.Flags().Lookup("last-obs"); f != nil && f.Changed {
		cfg.Fit.LastObs, _ = cmd.Flags().GetInt("last-obs")
	}
	if f := cmd.Flags().Lookup("horizon"); f != nil && f.Changed {
		cfg.Forecast.Horizon, _ = cmd.Flags().GetInt("horizon")
	}
	if f := cmd.Flags().Lookup("start"); f != nil && f.Changed {
		cfg.Forecast.Start, _ = cmd.Flags().GetInt("start")
	}
	if f := cmd.Flags().Lookup("method"); f != nil && f.Changed {
		cfg.Forecast.Method, _ = cmd.Flags().GetString("method")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish flushes the metrics textfile and closes the log output.
func (a *app) finish() {
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.log.Error().Err(err).Str("path", path).Msg("write metrics textfile")
		}
	}
	a.closer.Close()
}

// fit loads the panel named by --data and fits the configured model.
func (a *app) fit(cmd *cobra.Command) (*march.Model, *march.FittedModel, error) {
	dataFile, _ := cmd.Flags().GetString("data")
	p, err := march.LoadCSV(dataFile)
	if err != nil {
		return nil, nil, err
	}
	if scale, _ := cmd.Flags().GetFloat64("scale"); scale != 1 {
		if p, err = p.Scaled(scale); err != nil {
			return nil, nil, err
		}
	}
	a.log.Info().
		Str("data", dataFile).
		Strs("series", p.Names()).
		Int("observations", p.Len()).
		Msg("loaded returns")

	opts := []march.Option{
		march.WithLogger(a.log),
		march.WithMetrics(a.metrics),
		march.WithOptimizer(a.cfg.OptimOptions()),
		march.WithWorkers(a.cfg.Fit.Workers),
		march.WithSimulation(a.cfg.Forecast.Simulations, a.cfg.Forecast.Seed),
	}
	if !a.cfg.Fit.StdErrors {
		opts = append(opts, march.WithoutStdErrors())
	}
	m, err := march.New(p, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := m.SetArch(a.cfg.ModelSpec(), a.cfg.Model.Errors, a.cfg.Model.Multivar); err != nil {
		return nil, nil, err
	}
	f, err := m.Fit(cmd.Context(), march.FitOptions{
		UpdateFreq: a.cfg.Fit.UpdateFreq,
		LastObs:    a.cfg.Fit.LastObs,
		Init:       a.cfg.Fit.Init,
	})
	if err != nil {
		return nil, nil, err
	}
	return m, f, nil
}
