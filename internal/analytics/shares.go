package analytics

// ShareTally is the shares card: counts since the last payout and lifetime
type ShareTally struct {
	SinceLastPayout       int `json:"since_last_payout"`
	UnclesSinceLastPayout int `json:"uncles_since_last_payout"`
	Total                 int `json:"total"`
	TotalUncles           int `json:"total_uncles"`
}

// TallyShares counts shares and uncles. Shares strictly newer than
// lastPayout count toward the since-payout totals.
func TallyShares(shares []Share, lastPayout int64) ShareTally {
	var t ShareTally
	for _, s := range shares {
		t.Total++
		if s.IsUncle() {
			t.TotalUncles++
		}
		if s.Timestamp > lastPayout {
			t.SinceLastPayout++
			if s.IsUncle() {
				t.UnclesSinceLastPayout++
			}
		}
	}
	return t
}
