package util

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hako/durafmt"
)

const (
	// AtomicUnitsPerCoin is the number of ledger atomic units in one XMR
	AtomicUnitsPerCoin = 1e12

	// DefaultBlockTime is the Monero main chain target block interval
	DefaultBlockTime = 120 * time.Second

	// SecondsPerDay is used by every per-day rate
	SecondsPerDay = 86400
)

// AtomicToCoin converts ledger atomic units to coin units
func AtomicToCoin(atomic uint64) float64 {
	return float64(atomic) / AtomicUnitsPerCoin
}

// DifficultyToHashrate estimates network hashrate from difficulty and block time
func DifficultyToHashrate(difficulty uint64, blockTime time.Duration) float64 {
	if blockTime <= 0 {
		return 0
	}
	return float64(difficulty) / blockTime.Seconds()
}

// BlocksPerDay returns the expected number of main chain blocks per day
func BlocksPerDay(blockTime time.Duration) float64 {
	if blockTime <= 0 {
		return 0
	}
	return SecondsPerDay / blockTime.Seconds()
}

// SafeDiv divides a by b, returning 0 instead of NaN or Inf.
func SafeDiv(a, b float64) float64 {
	if b == 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return 0
	}
	r := a / b
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Finite reports whether v is neither NaN nor infinite
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FormatHashrate renders a hashrate with a readable unit
func FormatHashrate(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.2f GH/s", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2f MH/s", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.2f kH/s", v/1e3)
	}
	return fmt.Sprintf("%d H/s", int64(math.Round(v)))
}

// FormatDuration renders d with its two most significant units.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}
	return durafmt.Parse(d.Round(time.Second)).LimitFirstN(2).String()
}

// FormatRelative renders how long ago ts (unix seconds) was, relative to now.
func FormatRelative(ts int64, now time.Time) string {
	diff := now.Unix() - ts
	switch {
	case diff < 60:
		return fmt.Sprintf("%ds ago", diff)
	case diff < 3600:
		return fmt.Sprintf("%dm ago", diff/60)
	case diff < SecondsPerDay:
		return fmt.Sprintf("%dh ago", diff/3600)
	}
	return fmt.Sprintf("%dd ago", diff/SecondsPerDay)
}

// ValidateAddress validates Monero primary (4...) and subaddress (8...) format
func ValidateAddress(addr string) bool {
	if len(addr) != 95 && len(addr) != 106 {
		return false
	}
	if addr[0] != '4' && addr[0] != '8' {
		return false
	}
	for _, c := range addr {
		if !strings.ContainsRune(base58Alphabet, c) {
			return false
		}
	}
	return true
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
