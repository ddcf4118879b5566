package tracker

import (
	"github.com/Tanguille/p2pool-dashboard/internal/analytics"
	"github.com/Tanguille/p2pool-dashboard/internal/pplns"
	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

func newLedgerWindow(maxDepth int) WindowSource {
	return pplns.NewReconstructor(maxDepth)
}

// emitEvents compares the tick with the previous one and announces new
// payouts, pool blocks and miner status changes
func (t *Tracker) emitEvents(snap *snapshot, rep *Report) {
	if snap.payoutsOK && rep.Payouts != nil {
		t.announcePayouts(snap.payouts, rep)
	}

	if snap.foundOK {
		if t.lastFound > 0 && snap.lastFound > t.lastFound {
			util.Infof("Pool found a block at %d (effort %.2f%%)", snap.lastFound, t.lastEffort)
			if t.notifier != nil {
				t.notifier.NotifyPoolBlock(snap.lastFound, t.lastEffort)
			}
		}
		t.lastFound = snap.lastFound
	}
	if snap.poolInfo != nil {
		t.lastEffort = snap.poolInfo.Sidechain.Effort.Current
	}

	if snap.stratum != nil {
		active := snap.stratum.Connections > 0
		if t.minerActive != nil && *t.minerActive != active && t.notifier != nil {
			if active {
				t.notifier.NotifyMinerOnline(snap.stratum.Connections)
			} else {
				t.notifier.NotifyMinerOffline(snap.stratum.LastShareFoundTime)
			}
		}
		t.minerActive = &active
	}
}

// announcePayouts notifies once per payout. The first batch seen only
// seeds the high-water mark so history is not replayed on startup.
func (t *Tracker) announcePayouts(payouts []analytics.Payout, rep *Report) {
	newest := rep.Payouts.LastPayout
	if newest == 0 {
		return
	}

	var price float64
	if rep.Price != nil {
		price = rep.Price.Value
	}

	if t.redis != nil {
		wallet := t.sources.Ledger.Wallet()
		added, err := t.redis.RecordPayouts(wallet, payouts)
		if err != nil {
			util.Warnf("Archive payouts: %v", err)
			return
		}
		notified, err := t.redis.LastNotifiedPayout(wallet)
		if err != nil {
			util.Warnf("Read last notified payout: %v", err)
			return
		}
		if notified > 0 {
			t.announce(added, notified, price)
		}
		if newest > notified {
			if err := t.redis.SetLastNotifiedPayout(wallet, newest); err != nil {
				util.Warnf("Store last notified payout: %v", err)
			}
		}
		return
	}

	if t.payoutsSeeded {
		t.announce(payouts, t.lastPayout, price)
	}
	t.payoutsSeeded = true
	if newest > t.lastPayout {
		t.lastPayout = newest
	}
}

func (t *Tracker) announce(payouts []analytics.Payout, after int64, price float64) {
	for _, p := range payouts {
		if p.Timestamp <= after {
			continue
		}
		util.Infof("New payout: %.6f XMR", p.XMR())
		t.agent.RecordPayout(p.Timestamp, p.XMR())
		if t.notifier != nil {
			t.notifier.NotifyPayout(p, price)
		}
	}
}
