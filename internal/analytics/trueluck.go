package analytics

import (
	"errors"
	"time"

	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// Sentinel errors that suppress the true luck display
var (
	ErrInvalidStartTime   = errors.New("mining start time is not set")
	ErrNoPayoutSinceStart = errors.New("no payout since mining start")
	ErrNoExpectedRate     = errors.New("expected reward rate is zero")
)

// TrueLuckInput carries lifetime payout data since a declared start time
type TrueLuckInput struct {
	Start            time.Time
	LastPayout       int64
	TotalPaidXMR     float64
	ExpectedDailyXMR float64
}

// TrueLuck returns lifetime payouts divided by the payout expected between
// Start and the most recent payout.
func TrueLuck(in TrueLuckInput) (float64, error) {
	if in.Start.IsZero() || in.Start.Unix() <= 0 {
		return 0, ErrInvalidStartTime
	}

	elapsedDays := float64(in.LastPayout-in.Start.Unix()) / util.SecondsPerDay
	if elapsedDays <= 0 {
		return 0, ErrNoPayoutSinceStart
	}

	expected := in.ExpectedDailyXMR * elapsedDays
	if expected <= 0 || !util.Finite(expected) {
		return 0, ErrNoExpectedRate
	}
	return in.TotalPaidXMR / expected, nil
}

// PaidSince sums payouts at or after start and returns the total in XMR
// along with the newest payout timestamp among them.
func PaidSince(payouts []Payout, start time.Time) (float64, int64) {
	var (
		total float64
		last  int64
	)
	from := start.Unix()
	for _, p := range payouts {
		if p.Timestamp < from {
			continue
		}
		total += p.XMR()
		if p.Timestamp > last {
			last = p.Timestamp
		}
	}
	return total, last
}
