package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		sentinel error
		other    error
	}{
		{"configuration", Configuration("SetArch", "series", ">= 2"), ErrConfiguration, ErrData},
		{"data", Data("New", "SPX", "finite"), ErrData, ErrEstimation},
		{"estimation", Estimation("Fit", "nu", "> 2"), ErrEstimation, ErrForecast},
		{"forecast", Forecast("Forecast", "horizon", "> 0"), ErrForecast, ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.NotErrorIs(t, tt.err, tt.other)
			assert.Equal(t, -1, tt.err.Index)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Forecast("Forecast", "start", "0 <= start < 2700").AtIndex(3000)
	assert.Equal(t, "forecast error in Forecast: start at index 3000: violates 0 <= start < 2700", err.Error())
}

func TestErrorWrapAndAs(t *testing.T) {
	cause := errors.New("optimize: maximum number of major iterations reached")
	base := Estimation("Fit", "joint", "converged within 10 iterations")
	wrapped := fmt.Errorf("fit model: %w", base.Wrap(cause))

	require.ErrorIs(t, wrapped, ErrEstimation)
	require.ErrorIs(t, wrapped, cause)

	var e *Error
	require.True(t, errors.As(wrapped, &e))
	assert.Equal(t, "joint", e.Param)
	assert.Nil(t, base.Err, "Wrap must not mutate the receiver")
}
