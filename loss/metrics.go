package loss

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/audiomend/apcsnr/algorithms/common"
)

// float64 machine epsilon, the denominator guard of the waveform metrics
const metricEps = 2.220446049250313e-16

// SNR computes the per-item time-domain signal-to-noise ratio in dB of an
// estimate against a clean reference. With zeroMean set, both signals are
// mean-centered first.
func SNR(clean, est [][]float64, zeroMean bool) ([]float64, error) {
	if err := checkPairedBatch(clean, est); err != nil {
		return nil, err
	}

	snrs := make([]float64, len(clean))
	for b := range clean {
		s := prepared(clean[b], zeroMean)
		e := prepared(est[b], zeroMean)

		diff := make([]float64, len(s))
		copy(diff, s)
		floats.Sub(diff, e)

		snrs[b] = 10 * math.Log10((floats.Dot(s, s)+metricEps)/(floats.Dot(diff, diff)+metricEps))
	}
	return snrs, nil
}

// SISNR computes the per-item scale-invariant SNR in dB: the estimate is
// decomposed into a target component, the orthogonal projection onto the
// clean reference, and a residual error, making the ratio insensitive to
// uniform scaling of the estimate.
func SISNR(clean, est [][]float64, zeroMean bool) ([]float64, error) {
	if err := checkPairedBatch(clean, est); err != nil {
		return nil, err
	}

	sisnrs := make([]float64, len(clean))
	for b := range clean {
		s := prepared(clean[b], zeroMean)
		sHat := prepared(est[b], zeroMean)

		projection := (floats.Dot(sHat, s) + metricEps) / (floats.Dot(s, s) + metricEps)

		target := make([]float64, len(s))
		floats.AddScaled(target, projection, s)

		noise := make([]float64, len(sHat))
		copy(noise, sHat)
		floats.Sub(noise, target)

		sisnrs[b] = 10 * math.Log10((floats.Dot(target, target)+metricEps)/(floats.Dot(noise, noise)+metricEps))
	}
	return sisnrs, nil
}

// ERLE computes the per-item echo return loss enhancement in dB between the
// microphone signal and the residual estimate
func ERLE(mic, est [][]float64) ([]float64, error) {
	if err := checkPairedBatch(mic, est); err != nil {
		return nil, err
	}

	erles := make([]float64, len(mic))
	for b := range mic {
		erles[b] = 10 * math.Log10(floats.Dot(mic[b], mic[b])/(floats.Dot(est[b], est[b])+metricEps))
	}
	return erles, nil
}

func prepared(signal []float64, zeroMean bool) []float64 {
	out := make([]float64, len(signal))
	copy(out, signal)
	if zeroMean {
		floats.AddConst(-stat.Mean(signal, nil), out)
	}
	return out
}

func checkPairedBatch(ref, est [][]float64) error {
	if len(ref) == 0 || len(est) == 0 {
		return common.Shapef("empty batch")
	}
	if len(ref) != len(est) {
		return common.Shapef("batch sizes differ: %d vs %d", len(ref), len(est))
	}
	for b := range ref {
		if len(ref[b]) != len(est[b]) {
			return common.Shapef("item %d: lengths differ: %d vs %d", b, len(ref[b]), len(est[b]))
		}
		if len(ref[b]) == 0 {
			return common.Shapef("item %d is empty", b)
		}
	}
	return nil
}
