package util

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestAtomicToCoin(t *testing.T) {
	tests := []struct {
		atomic   uint64
		expected float64
	}{
		{0, 0},
		{1e12, 1},
		{600000000000, 0.6},
		{10000000000, 0.01},
	}

	for _, tt := range tests {
		if got := AtomicToCoin(tt.atomic); math.Abs(got-tt.expected) > 1e-15 {
			t.Errorf("AtomicToCoin(%d) = %v, want %v", tt.atomic, got, tt.expected)
		}
	}
}

func TestDifficultyToHashrate(t *testing.T) {
	if got := DifficultyToHashrate(120000, 120*time.Second); got != 1000 {
		t.Errorf("DifficultyToHashrate() = %v, want 1000", got)
	}
	if got := DifficultyToHashrate(120000, 0); got != 0 {
		t.Errorf("DifficultyToHashrate() with zero block time = %v, want 0", got)
	}
}

func TestBlocksPerDay(t *testing.T) {
	if got := BlocksPerDay(DefaultBlockTime); got != 720 {
		t.Errorf("BlocksPerDay(120s) = %v, want 720", got)
	}
	if got := BlocksPerDay(0); got != 0 {
		t.Errorf("BlocksPerDay(0) = %v, want 0", got)
	}
}

func TestSafeDiv(t *testing.T) {
	tests := []struct {
		name     string
		a, b     float64
		expected float64
	}{
		{"normal", 10, 4, 2.5},
		{"zero denominator", 10, 0, 0},
		{"zero over zero", 0, 0, 0},
		{"nan denominator", 1, math.NaN(), 0},
		{"inf denominator", 1, math.Inf(1), 0},
		{"inf numerator", math.Inf(1), 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeDiv(tt.a, tt.b); got != tt.expected {
				t.Errorf("SafeDiv(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestFormatHashrate(t *testing.T) {
	tests := []struct {
		in       float64
		expected string
	}{
		{0, "0 H/s"},
		{999.6, "1000 H/s"},
		{1500, "1.50 kH/s"},
		{2.5e6, "2.50 MH/s"},
		{3e9, "3.00 GH/s"},
	}

	for _, tt := range tests {
		if got := FormatHashrate(tt.in); got != tt.expected {
			t.Errorf("FormatHashrate(%v) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	got := FormatDuration(5*time.Hour + 30*time.Minute + 12*time.Second)
	if !strings.Contains(got, "5 hours") || !strings.Contains(got, "30 minutes") {
		t.Errorf("FormatDuration() = %q, want hours and minutes", got)
	}
	if strings.Contains(got, "seconds") {
		t.Errorf("FormatDuration() = %q, should keep two units only", got)
	}
	if got := FormatDuration(0); got != "0 seconds" {
		t.Errorf("FormatDuration(0) = %q", got)
	}
}

func TestFormatRelative(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		ago      int64
		expected string
	}{
		{30, "30s ago"},
		{120, "2m ago"},
		{7200, "2h ago"},
		{3 * SecondsPerDay, "3d ago"},
	}

	for _, tt := range tests {
		if got := FormatRelative(now.Unix()-tt.ago, now); got != tt.expected {
			t.Errorf("FormatRelative(-%d) = %q, want %q", tt.ago, got, tt.expected)
		}
	}
}

func TestValidateAddress(t *testing.T) {
	valid := "4" + strings.Repeat("A", 94)
	sub := "8" + strings.Repeat("b", 94)
	integrated := "4" + strings.Repeat("c", 105)

	tests := []struct {
		addr     string
		expected bool
	}{
		{valid, true},
		{sub, true},
		{integrated, true},
		{"", false},
		{"tos1abc", false},
		{"5" + strings.Repeat("A", 94), false},
		{"4" + strings.Repeat("0", 94), false},
		{"4" + strings.Repeat("A", 93), false},
	}

	for _, tt := range tests {
		if got := ValidateAddress(tt.addr); got != tt.expected {
			t.Errorf("ValidateAddress(%q) = %v, want %v", tt.addr, got, tt.expected)
		}
	}
}
