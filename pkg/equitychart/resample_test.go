package equitychart

import (
	"testing"
	"time"
)

func pt(t *testing.T, ts string, v float64) EquityPoint {
	t.Helper()
	parsed, err := time.Parse("2006-01-02T15:04", ts)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", ts, err)
	}
	return EquityPoint{Timestamp: parsed, Value: v}
}

func TestResampleEmpty(t *testing.T) {
	if out := Resample(nil); len(out) != 0 {
		t.Fatalf("expected empty output, got %v", out)
	}
	if out := Resample([]EquityPoint{}); len(out) != 0 {
		t.Fatalf("expected empty output, got %v", out)
	}
}

func TestResampleSinglePoint(t *testing.T) {
	out := Resample([]EquityPoint{pt(t, "2024-03-05T09:30", 1234.5)})
	if len(out) != 1 {
		t.Fatalf("expected 1 point, got %d", len(out))
	}
	if out[0].Label != "09:30" || out[0].Value != 1234.5 {
		t.Fatalf("unexpected point: %+v", out[0])
	}
}

func TestResampleIntradayKeepsEveryPointSorted(t *testing.T) {
	// deliberately out of order
	in := []EquityPoint{
		pt(t, "2024-03-05T15:00", 110),
		pt(t, "2024-03-05T09:00", 100),
		pt(t, "2024-03-05T12:30", 105),
	}
	out := Resample(in)
	if len(out) != len(in) {
		t.Fatalf("expected %d points, got %d", len(in), len(out))
	}
	wantLabels := []string{"09:00", "12:30", "15:00"}
	wantValues := []float64{100, 105, 110}
	for i := range out {
		if out[i].Label != wantLabels[i] || out[i].Value != wantValues[i] {
			t.Fatalf("point %d: expected (%s,%v) got (%s,%v)",
				i, wantLabels[i], wantValues[i], out[i].Label, out[i].Value)
		}
	}
	// input untouched
	if in[0].Value != 110 {
		t.Fatalf("input slice was mutated: %+v", in)
	}
}

func TestResampleIntradayExample(t *testing.T) {
	out := Resample([]EquityPoint{
		pt(t, "2024-03-05T09:00", 100),
		pt(t, "2024-03-05T09:05", 101),
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 points, got %d", len(out))
	}
	if out[0].Label != "09:00" || out[0].Value != 100 {
		t.Fatalf("unexpected first point: %+v", out[0])
	}
	if out[1].Label != "09:05" || out[1].Value != 101 {
		t.Fatalf("unexpected second point: %+v", out[1])
	}
}

func TestResampleMultiDayExample(t *testing.T) {
	out := Resample([]EquityPoint{
		pt(t, "2024-01-01T09:00", 100),
		pt(t, "2024-01-01T15:00", 110),
		pt(t, "2024-01-02T10:00", 105),
		pt(t, "2024-01-02T16:00", 120),
	})
	if len(out) != 2 {
		t.Fatalf("expected 2 points, got %d", len(out))
	}
	// first day opens, later days close
	if out[0].Label != "01/01" || out[0].Value != 100 {
		t.Fatalf("unexpected first point: %+v", out[0])
	}
	if out[1].Label != "01/02" || out[1].Value != 120 {
		t.Fatalf("unexpected second point: %+v", out[1])
	}
}

func TestResampleMultiDayRepresentatives(t *testing.T) {
	in := []EquityPoint{
		// shuffled across three days
		pt(t, "2024-02-12T16:00", 210),
		pt(t, "2024-02-10T09:00", 100),
		pt(t, "2024-02-11T11:00", 150),
		pt(t, "2024-02-10T17:00", 120),
		pt(t, "2024-02-11T15:00", 160),
		pt(t, "2024-02-12T09:00", 190),
	}
	out := Resample(in)
	if len(out) != 3 {
		t.Fatalf("expected one point per day, got %d", len(out))
	}
	want := []struct {
		label string
		value float64
	}{
		{"02/10", 100}, // opening value of the earliest day
		{"02/11", 160}, // closing value
		{"02/12", 210}, // closing value
	}
	for i, w := range want {
		if out[i].Label != w.label || out[i].Value != w.value {
			t.Fatalf("point %d: expected (%s,%v) got (%s,%v)",
				i, w.label, w.value, out[i].Label, out[i].Value)
		}
	}
}

func TestResampleStableOnTimestampTies(t *testing.T) {
	ts := "2024-03-05T10:00"
	in := []EquityPoint{pt(t, ts, 1), pt(t, ts, 2), pt(t, ts, 3)}
	out := Resample(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 points, got %d", len(out))
	}
	for i, want := range []float64{1, 2, 3} {
		if out[i].Value != want {
			t.Fatalf("tie order not preserved: %+v", out)
		}
	}
}

func TestResampleInRespectsLocation(t *testing.T) {
	// 23:30 and 00:30 UTC straddle midnight; shifted +2h both land on
	// the same calendar day.
	in := []EquityPoint{
		pt(t, "2024-03-05T23:30", 100),
		pt(t, "2024-03-06T00:30", 101),
	}
	if out := Resample(in); len(out) != 2 || out[0].Label != "03/05" {
		t.Fatalf("expected two UTC day-buckets, got %v", out)
	}

	plus2 := time.FixedZone("UTC+2", 2*60*60)
	out := ResampleIn(in, plus2)
	if len(out) != 2 {
		t.Fatalf("expected intraday output, got %v", out)
	}
	if out[0].Label != "01:30" || out[1].Label != "02:30" {
		t.Fatalf("expected hh:mm labels in UTC+2, got %v", out)
	}
}
