package analytics

import (
	"errors"
	"math"
	"testing"
)

func TestProjectDay(t *testing.T) {
	got := Project(EarningsInput{
		OwnHashrate:     1000,
		NetworkHashrate: 1e9,
		BlockReward:     0.6,
		BlocksPerDay:    720,
		Price:           100,
		Period:          PeriodDay,
	})

	if math.Abs(got.XMRPerDay-0.000432) > 1e-12 {
		t.Errorf("XMRPerDay = %v, want 0.000432", got.XMRPerDay)
	}
	if math.Abs(got.PeriodXMR-0.000432) > 1e-12 {
		t.Errorf("PeriodXMR = %v, want 0.000432", got.PeriodXMR)
	}
	if math.Abs(got.PeriodFiat-0.0432) > 1e-10 {
		t.Errorf("PeriodFiat = %v, want 0.0432", got.PeriodFiat)
	}
}

func TestProjectPeriods(t *testing.T) {
	base := EarningsInput{OwnHashrate: 1000, NetworkHashrate: 1e9, BlockReward: 0.6, BlocksPerDay: 720}

	tests := []struct {
		period Period
		days   float64
	}{
		{PeriodHour, 1.0 / 24},
		{PeriodDay, 1},
		{PeriodWeek, 7},
		{PeriodMonth, 30},
		{PeriodYear, 365},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			in := base
			in.Period = tt.period
			got := Project(in)
			want := 0.000432 * tt.days
			if math.Abs(got.PeriodXMR-want) > 1e-12 {
				t.Errorf("PeriodXMR = %v, want %v", got.PeriodXMR, want)
			}
		})
	}
}

func TestProjectZeroNetwork(t *testing.T) {
	got := Project(EarningsInput{
		OwnHashrate:  1000,
		BlockReward:  0.6,
		BlocksPerDay: 720,
		Price:        100,
		Period:       PeriodWeek,
	})
	if got.PeriodXMR != 0 || got.PeriodFiat != 0 || got.NetShare != 0 {
		t.Errorf("Project(network=0) = %+v, want zero", got)
	}
}

func TestParsePeriod(t *testing.T) {
	if p, err := ParsePeriod(" Week "); err != nil || p != PeriodWeek {
		t.Errorf("ParsePeriod(Week) = %v, %v", p, err)
	}
	if _, err := ParsePeriod("fortnight"); !errors.Is(err, ErrUnknownPeriod) {
		t.Errorf("ParsePeriod(fortnight) error = %v, want ErrUnknownPeriod", err)
	}
}
