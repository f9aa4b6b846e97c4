package temper

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// betaTol is the bracket width at which the β-step bisection stops. A step
// smaller than this is treated as no progress.
const betaTol = 1e-6

// logMeanExp computes log(mean(exp(logw))) without leaving log space.
func logMeanExp(logw []float64) float64 {
	return floats.LogSumExp(logw) - math.Log(float64(len(logw)))
}

// essFromLogWeights computes the effective sample size of an unnormalized
// log-weight vector:
//
//	ESS = (Σw)² / Σw² = exp(2·LSE(logw) − LSE(2·logw))
//
// ESS is n for uniform weights and 1 when a single weight dominates.
func essFromLogWeights(logw []float64) float64 {
	if len(logw) == 0 {
		return 0
	}
	doubled := make([]float64, len(logw))
	for i, lw := range logw {
		doubled[i] = 2 * lw
	}
	return math.Exp(2*floats.LogSumExp(logw) - floats.LogSumExp(doubled))
}

// nextBeta selects the next inverse temperature by bisection on (beta, 2]:
// the β′ whose incremental weights exp((β′−beta)·likeLogp_i) hold the pool's
// ESS at targetESS. ESS is monotone non-increasing in β′, so the bracket
// halves until it is narrower than betaTol. The upper bracket opens at 2 so
// a root beyond 1 saturates the step, which is then clipped to exactly 1.
func nextBeta(likeLogp []float64, beta, targetESS float64) float64 {
	low, up := beta, 2.0
	logw := make([]float64, len(likeLogp))
	var mid float64
	for up-low > betaTol {
		mid = (low + up) / 2
		for i, ll := range likeLogp {
			logw[i] = (mid - beta) * ll
		}
		if essFromLogWeights(logw) < targetESS {
			up = mid
		} else {
			low = mid
		}
	}
	if mid >= 1 {
		return 1
	}
	return mid
}

// truncationCap returns the log-space weight cap
//
//	logMeanExp(logw) + kTrunc·log(n)
//
// the log form of mean(w)·n^kTrunc. Capping at it limits the influence any
// single sample can exert on the next fit.
func truncationCap(logw []float64, kTrunc float64) float64 {
	return logMeanExp(logw) + kTrunc*math.Log(float64(len(logw)))
}

// capLogWeights returns logw with every entry capped at logCap. Applying the
// same cap twice is a no-op.
func capLogWeights(logw []float64, logCap float64) []float64 {
	out := make([]float64, len(logw))
	for i, lw := range logw {
		out[i] = math.Min(lw, logCap)
	}
	return out
}
