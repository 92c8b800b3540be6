package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peter-wins/tradewatch/pkg/equitychart"
)

func ep(ts time.Time, v float64) equitychart.EquityPoint {
	return equitychart.EquityPoint{Timestamp: ts, Value: v}
}

func TestMergeEquityPoints(t *testing.T) {
	base := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	journalled := []equitychart.EquityPoint{
		ep(base, 100),
		ep(base.Add(time.Minute), 101),
		ep(base.Add(2*time.Minute), 999), // same ts as an upstream point
	}
	fetched := []equitychart.EquityPoint{
		ep(base.Add(2*time.Minute), 102),
		ep(base.Add(3*time.Minute), 103),
	}

	out := mergeEquityPoints(journalled, fetched, 10)
	require.Len(t, out, 4)
	// chronological, duplicate timestamp resolved in upstream's favour
	require.Equal(t, 100.0, out[0].Value)
	require.Equal(t, 101.0, out[1].Value)
	require.Equal(t, 102.0, out[2].Value)
	require.Equal(t, 103.0, out[3].Value)
}

func TestMergeEquityPointsAppliesLimit(t *testing.T) {
	base := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	var journalled []equitychart.EquityPoint
	for i := 0; i < 6; i++ {
		journalled = append(journalled, ep(base.Add(time.Duration(i)*time.Minute), float64(i)))
	}

	out := mergeEquityPoints(journalled, nil, 3)
	require.Len(t, out, 3)
	// the newest three survive
	require.Equal(t, 3.0, out[0].Value)
	require.Equal(t, 5.0, out[2].Value)
}

func TestMergeEquityPointsEmptyInputs(t *testing.T) {
	require.Empty(t, mergeEquityPoints(nil, nil, 10))
	one := []equitychart.EquityPoint{ep(time.Now(), 1)}
	require.Len(t, mergeEquityPoints(one, nil, 10), 1)
	require.Len(t, mergeEquityPoints(nil, one, 10), 1)
}
