package loss

// AcousticScaler derives perceptually motivated per-bin, per-frame scale
// factors from paired power spectra. Inputs and outputs are batches of
// numFrames x freqBins matrices of identical shape; outputs are nonnegative
// and are consumed only as constant multiplicative weights, never
// differentiated through.
//
// Implementations are configured by a threshold theta and a bin count of
// freqBins+1 (one implementation-specific edge bin past the transform's
// one-sided bins).
type AcousticScaler interface {
	Scale(estPower, cleanPower [][][]float64) (estScale, cleanScale [][][]float64, err error)
}

// PerceptualScorer predicts a human-perceived quality score from paired
// power spectra at a fixed 16 kHz sample rate. It returns one score per
// frame per batch item. vadMask, when non-nil, holds per-frame weights of
// shape batch x numFrames used to down-weight silence-dominated frames.
type PerceptualScorer interface {
	Score(estPower, cleanPower [][][]float64, vadMask [][]float64) ([][]float64, error)
}
