// Package config loads the YAML run configuration of the march CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/bjt1997/march/internal/errs"
	"github.com/bjt1997/march/internal/garch"
	"github.com/bjt1997/march/internal/logger"
	"github.com/bjt1997/march/internal/optim"
)

var validate = validator.New()

type Config struct {
	Model struct {
		P        int     `yaml:"p" default:"1" validate:"gte=0"`
		O        int     `yaml:"o" default:"0" validate:"gte=0"`
		Q        int     `yaml:"q" default:"1" validate:"gte=0"`
		Power    float64 `yaml:"power" default:"2" validate:"gt=0"`
		Errors   string  `yaml:"errors" default:"student" validate:"oneof=normal gaussian student studentt student-t t"`
		Multivar string  `yaml:"multivar" default:"dcca" validate:"oneof=dcca dcc-a"`
	} `yaml:"model"`
	Fit struct {
		LastObs       int       `yaml:"last_obs" validate:"gte=0"`
		UpdateFreq    int       `yaml:"update_freq" validate:"gte=0"`
		Init          []float64 `yaml:"init" validate:"omitempty,min=3,max=4"`
		Method        string    `yaml:"method" default:"neldermead" validate:"oneof=neldermead bfgs"`
		MaxIterations int       `yaml:"max_iterations" default:"20000" validate:"gt=0"`
		Tolerance     float64   `yaml:"tolerance" default:"1e-8" validate:"gt=0"`
		Relative      float64   `yaml:"relative_tolerance" default:"1e-9" validate:"gt=0"`
		// Restarts from the best point after each optimizer run; -1 disables them.
		Restarts      int       `yaml:"restarts" default:"2" validate:"gte=-1"`
		StdErrors     bool      `yaml:"std_errors" default:"true"`
		Workers       int       `yaml:"workers" validate:"gte=0"`
	} `yaml:"fit"`
	Forecast struct {
		Horizon int `yaml:"horizon" default:"5" validate:"gt=0"`
		// Start is the forecast origin; -1 means the last estimation observation.
		Start       int    `yaml:"start" default:"-1" validate:"gte=-1"`
		Method      string `yaml:"method" default:"simulation" validate:"oneof=simulation analytic"`
		Simulations int    `yaml:"simulations" default:"1000" validate:"gt=0"`
		Seed        uint64 `yaml:"seed" default:"42"`
	} `yaml:"forecast"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stderr"`
	} `yaml:"log"`
	Metrics struct {
		// Textfile, when set, receives the metrics after each command.
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
}

// Default returns the configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set config defaults: %w", err)
	}
	return &c, nil
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load over an in-memory document.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every field against its rule. The first failure is
// returned as a configuration error naming the field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return c.ModelSpec().Validate()
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		return errs.Configuration("config.Validate", fieldPath(fe.Namespace()), rule)
	}
	return errs.Configuration("config.Validate", "config", "valid configuration").Wrap(err)
}

// fieldPath turns "Config.Fit.LastObs" into "fit.lastobs".
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Config.")
	return strings.ToLower(ns)
}

// ModelSpec is the univariate specification.
func (c *Config) ModelSpec() garch.Spec {
	return garch.GARCH(c.Model.P, c.Model.O, c.Model.Q, c.Model.Power)
}

// OptimOptions configures the estimation optimizer.
func (c *Config) OptimOptions() optim.Options {
	return optim.Options{
		Method:        c.Fit.Method,
		MaxIterations: c.Fit.MaxIterations,
		Tolerance:     c.Fit.Tolerance,
		Relative:      c.Fit.Relative,
		Restarts:      c.Fit.Restarts,
	}
}

// LoggerConfig is the logger section in the form logger.New expects.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Format: c.Log.Format, Output: c.Log.Output}
}
