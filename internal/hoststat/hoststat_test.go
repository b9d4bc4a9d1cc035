package hoststat

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_FreeGBReturnsPositiveValueForTempDir(t *testing.T) {
	r := New()
	free, err := r.FreeGB(os.TempDir())
	require.NoError(t, err)
	assert.Greater(t, free, 0.0)
}

func TestReporter_UsageReportsConsistentTotals(t *testing.T) {
	r := New()
	usage, err := r.Usage(os.TempDir())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, usage.TotalGB, usage.UsedGB)
	assert.GreaterOrEqual(t, usage.TotalGB, usage.FreeGB)
}

func TestReporter_LoadReportsPositiveCoreCount(t *testing.T) {
	r := New()
	load, err := r.Load()
	require.NoError(t, err)
	assert.Greater(t, load.Cores, 0)
}
