package ring

import (
	"math"
	"math/rand"
)

// betaAlpha, betaBeta parameterize the symmetric Beta(2,2) distribution used
// to pick replica positions: mass concentrated around the midpoint of [0,N)
// spreads replicas away from the primary and from each other better than a
// uniform re-hash does when the replication factor is small.
const (
	betaAlpha = 2.0
	betaBeta  = 2.0
)

// gammaSample draws from Gamma(shape, 1) via Marsaglia-Tsang for shape>=1,
// with the standard boost transform for shape<1.
func gammaSample(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return gammaSample(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		x4 := x * x * x * x
		if u < 1-0.0331*x4 {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// betaSample draws from Beta(alpha, beta) via the ratio of two Gamma draws.
func betaSample(rng *rand.Rand, alpha, beta float64) float64 {
	x := gammaSample(rng, alpha)
	y := gammaSample(rng, beta)
	return x / (x + y)
}
