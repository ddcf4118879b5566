package analytics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// ErrUnknownPeriod is returned for an unsupported earnings period
var ErrUnknownPeriod = errors.New("unknown earnings period")

// Period selects the span an earnings projection is scaled to
type Period string

// Supported periods
const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

var periodDays = map[Period]float64{
	PeriodHour:  1.0 / 24,
	PeriodDay:   1,
	PeriodWeek:  7,
	PeriodMonth: 30,
	PeriodYear:  365,
}

// ParsePeriod parses a period name, case-insensitively
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := periodDays[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
	}
	return p, nil
}

// Days returns the period length in days, 0 for an unknown period
func (p Period) Days() float64 {
	return periodDays[p]
}

// EarningsInput carries the smoothed values a projection is computed from
type EarningsInput struct {
	OwnHashrate     float64
	NetworkHashrate float64
	BlockReward     float64
	BlocksPerDay    float64
	Price           float64
	Period          Period
}

// EarningsEstimate is the projected reward for one period
type EarningsEstimate struct {
	Period     Period  `json:"period"`
	NetShare   float64 `json:"net_share"`
	XMRPerDay  float64 `json:"xmr_per_day"`
	PeriodXMR  float64 `json:"period_xmr"`
	PeriodFiat float64 `json:"period_fiat"`
}

// Project estimates the reward for the requested period. A zero network
// hashrate yields a zero estimate.
func Project(in EarningsInput) EarningsEstimate {
	share := util.SafeDiv(in.OwnHashrate, in.NetworkHashrate)
	perDay := share * in.BlocksPerDay * in.BlockReward
	periodXMR := perDay * in.Period.Days()

	return EarningsEstimate{
		Period:     in.Period,
		NetShare:   share,
		XMRPerDay:  perDay,
		PeriodXMR:  periodXMR,
		PeriodFiat: periodXMR * in.Price,
	}
}
