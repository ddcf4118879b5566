// Package pplns reconstructs the current PPLNS window from a ledger that
// reports a window depth on each share but no window start.
package pplns

import (
	"context"
	"fmt"
	"time"

	"github.com/Tanguille/p2pool-dashboard/internal/analytics"
	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// ShareSource returns the newest pool-wide shares, at most limit of them
type ShareSource interface {
	PoolShares(ctx context.Context, limit int) ([]analytics.Share, error)
}

// Reconstructor derives window boundaries with a two-phase fetch: the newest
// share gives the depth, then exactly that many recent shares are fetched
// and the oldest of them opens the window. Both fetches go to the source
// passed to Reconstruct, which must answer for a single sidechain.
type Reconstructor struct {
	maxDepth int
	now      func() time.Time
}

// NewReconstructor creates a reconstructor. maxDepth caps the second fetch;
// zero means no cap.
func NewReconstructor(maxDepth int) *Reconstructor {
	return &Reconstructor{
		maxDepth: maxDepth,
		now:      time.Now,
	}
}

// SetClock replaces the clock used for the degraded fallback
func (r *Reconstructor) SetClock(now func() time.Time) {
	r.now = now
}

// Reconstruct returns the current window. When the ledger yields no shares
// the window collapses to the current time and is marked degraded. A
// transport error is returned alongside the degraded window.
func (r *Reconstructor) Reconstruct(ctx context.Context, source ShareSource) (analytics.Window, error) {
	newest, err := source.PoolShares(ctx, 1)
	if err != nil {
		return r.degraded(), fmt.Errorf("fetch newest share: %w", err)
	}
	if len(newest) == 0 {
		util.Info("PPLNS window degraded: ledger returned no shares")
		return r.degraded(), nil
	}

	depth := newest[0].WindowDepth
	if depth <= 0 {
		depth = 1
	}
	if r.maxDepth > 0 && depth > r.maxDepth {
		depth = r.maxDepth
	}

	shares, err := source.PoolShares(ctx, depth)
	if err != nil {
		return r.degraded(), fmt.Errorf("fetch %d window shares: %w", depth, err)
	}
	if len(shares) == 0 {
		util.Info("PPLNS window degraded: window fetch returned no shares")
		return r.degraded(), nil
	}

	return FromShares(shares), nil
}

// FromShares builds a window from the shares that make it up
func FromShares(shares []analytics.Share) analytics.Window {
	w := analytics.Window{
		Start: shares[0].Timestamp,
		End:   shares[0].Timestamp,
		Depth: len(shares),
	}
	for _, s := range shares {
		if s.Timestamp < w.Start {
			w.Start = s.Timestamp
		}
		if s.Timestamp > w.End {
			w.End = s.Timestamp
		}
		w.TotalWeight += s.Difficulty
	}
	return w
}

func (r *Reconstructor) degraded() analytics.Window {
	now := r.now().Unix()
	return analytics.Window{Start: now, End: now, Degraded: true}
}
