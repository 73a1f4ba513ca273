package analysis

import "sort"

// RankByArbitrageValue sorts scenarios descending by ArbitrageValue. Ties keep input order.
func RankByArbitrageValue(stats []PriceStats) []PriceStats {
	out := append([]PriceStats(nil), stats...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ArbitrageValue > out[j].ArbitrageValue
	})
	return out
}

// RankByRent sorts technologies descending by expected power rent.
func RankByRent(rents []ScarcityRent) []ScarcityRent {
	out := append([]ScarcityRent(nil), rents...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Power > out[j].Power
	})
	return out
}
