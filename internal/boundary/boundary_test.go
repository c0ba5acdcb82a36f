package boundary

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	r := Report{
		{Component: "SPX", Param: "omega", Rule: "omega > 0", Value: 0.02, Satisfied: true},
		{Component: "dcca", Param: "alpha + beta + delta*gamma", Rule: "< 1", Value: 1.01, Satisfied: false},
	}
	assert.False(t, r.OK())
	require.Len(t, r.Violations(), 1)
	assert.Equal(t, "dcca", r.Violations()[0].Component)
	assert.Len(t, r.Component("SPX"), 1)
	assert.True(t, r.Component("SPX").OK())

	var b strings.Builder
	_, err := r.WriteTo(&b)
	require.NoError(t, err)
	assert.Contains(t, b.String(), "VIOLATED")
	assert.Contains(t, b.String(), "1 boundary condition(s) violated")
}

func TestEmptyReportIsOK(t *testing.T) {
	assert.True(t, Report(nil).OK())
}
