package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnomalyDetector(t *testing.T) {
	now := t0.Add(48 * time.Hour)

	tests := []struct {
		name   string
		record func(d *AnomalyDetector)
		want   bool
	}{
		{
			name:   "unknown ip",
			record: func(d *AnomalyDetector) {},
		},
		{
			name: "too little history",
			record: func(d *AnomalyDetector) {
				for i := 0; i < 9; i++ {
					d.Record("1.1.1.1", now)
				}
			},
		},
		{
			name: "exactly one hundred recent",
			record: func(d *AnomalyDetector) {
				for i := 0; i < 100; i++ {
					d.Record("1.1.1.1", now.Add(-time.Duration(i)*time.Minute))
				}
			},
		},
		{
			name: "old events do not count",
			record: func(d *AnomalyDetector) {
				for i := 0; i < 150; i++ {
					d.Record("1.1.1.1", now.Add(-25*time.Hour))
				}
			},
		},
		{
			name: "high frequency",
			record: func(d *AnomalyDetector) {
				for i := 0; i < 101; i++ {
					d.Record("1.1.1.1", now.Add(-time.Duration(i)*time.Minute))
				}
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewAnomalyDetector(0, 0)
			require.NoError(t, err)
			tt.record(d)

			got := d.Detect("1.1.1.1", now)
			if !tt.want {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, AnomalyHighFrequency, got.Type)
			assert.Equal(t, 101, got.EventCount)
			assert.Equal(t, 24, got.TimeWindowHours)
			assert.Equal(t, "Anomalous activity: 101 events in 24 hours", got.Description)
		})
	}
}

func TestAnomalyDetectorBounds(t *testing.T) {
	d, err := NewAnomalyDetector(2, 5)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		d.Record("a", t0)
	}
	d.Record("b", t0)
	d.Record("c", t0)

	assert.Equal(t, 2, d.TrackedIPs())
	assert.Nil(t, d.Detect("a", t0))
}
