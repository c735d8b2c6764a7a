package dht

import (
	"math"
	"math/big"

	"github.com/rcrowley/go-metrics"
)

// sizeEstimator maintains a running estimate of total DHT population,
// derived from the distance spread of each completed lookup's closest-K
// responders and tracked in a fixed-size reservoir the way the teacher's
// metrics package wraps rcrowley/go-metrics histograms elsewhere in the
// pack.
type sizeEstimator struct {
	hist metrics.Histogram
}

func newSizeEstimator() *sizeEstimator {
	return &sizeEstimator{hist: metrics.NewHistogram(metrics.NewUniformSample(1000))}
}

// idSpace is 2^160, the size of the Id space.
var idSpace = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), IdLength*8))

// Observe records one completed lookup's result: k is the number of
// responders considered (normally K=20) and dk is the XOR distance from
// target to the k-th closest responder.
func (s *sizeEstimator) Observe(k int, dk Id) {
	d := new(big.Int).SetBytes(dk[:])
	if d.Sign() == 0 {
		return
	}
	// N ≈ k · 2^160 / d_k
	num := new(big.Float).Mul(big.NewFloat(float64(k)), idSpace)
	estimate := new(big.Float).Quo(num, new(big.Float).SetInt(d))
	f, _ := estimate.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return
	}
	s.hist.Update(int64(f))
}

// Estimate reports the current (mean, stddev) over the histogram's
// 1000-slot uniform reservoir. Once more than 1000 observations have been
// made, the reservoir holds a random sample of all of them, not the last
// 1000.
func (s *sizeEstimator) Estimate() (mean, stddev float64) {
	return s.hist.Mean(), s.hist.StdDev()
}
