package domain

import "github.com/montanaflynn/stats"

// RollingMean returns the mean of each trailing window of size window
// (inclusive of the current element). Positions with fewer than window
// predecessors have no value and are nil; they are never backfilled.
func RollingMean(values []float64, window int) ([]*float64, error) {
	out := make([]*float64, len(values))
	if window < 1 {
		return nil, ErrInvalidOptions
	}
	for i := window - 1; i < len(values); i++ {
		m, err := stats.Mean(values[i-window+1 : i+1])
		if err != nil {
			return nil, err
		}
		out[i] = &m
	}
	return out, nil
}
