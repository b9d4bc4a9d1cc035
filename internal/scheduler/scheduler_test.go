package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCronExpression(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    string
		wantErr bool
	}{
		{"6 field passthrough", "0 0 2 * * *", "0 0 2 * * *", false},
		{"7 field strips year", "0 0 2 * * * 2030", "0 0 2 * * *", false},
		{"7 field with year range", "0 0 2 * * * 2024-2030", "0 0 2 * * *", false},
		{"descriptor passthrough", "@hourly", "@hourly", false},
		{"empty", "", "", true},
		{"too few fields", "0 0 2 *", "", true},
		{"invalid year field", "0 0 2 * * * abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCronExpression(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScheduler_UpsertAndRemove(t *testing.T) {
	s := New(nil)
	s.Start()
	defer s.Stop()

	err := s.Upsert("rotation-check", "0 0 2 * * *", func() {})
	require.NoError(t, err)
	assert.Contains(t, s.Entries(), "rotation-check")

	// Re-upserting the same key replaces rather than duplicates.
	err = s.Upsert("rotation-check", "0 30 2 * * *", func() {})
	require.NoError(t, err)
	assert.Len(t, s.Entries(), 1)

	s.Remove("rotation-check")
	assert.NotContains(t, s.Entries(), "rotation-check")
}

func TestScheduler_UpsertInvalidExpression(t *testing.T) {
	s := New(nil)
	err := s.Upsert("bad", "not a cron expr", func() {})
	assert.Error(t, err)
}
