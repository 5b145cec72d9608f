// Package stats implements a streaming mean/standard-deviation estimator
// used to aggregate RSSI samples for a fingerprint without retaining the
// individual samples.
package stats

import "math"

// Online holds the running state of a one-pass mean/standard-deviation
// estimator. The zero value is a valid, empty estimator (n=0, mean=0, std=0).
type Online struct {
	N    int
	Mean float64
	Std  float64
}

// Update folds a new sample x into the estimator. The first sample sets Mean
// to x and Std to 0; subsequent samples fold in using the incremental
// population variance update.
func (o *Online) Update(x float64) {
	if o.N == 0 {
		o.Mean = x
		o.Std = 0
		o.N = 1
		return
	}

	n := float64(o.N)
	newMean := (n*o.Mean + x) / (n + 1)
	newVar := (n*(o.Std*o.Std+(newMean-o.Mean)*(newMean-o.Mean)) + (newMean-x)*(newMean-x)) / (n + 1)

	o.Mean = newMean
	o.Std = math.Sqrt(newVar)
	o.N++
}
