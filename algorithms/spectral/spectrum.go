package spectral

import "math"

// Spectrum is the analysis output for one signal: real and imaginary parts
// of the one-sided time-frequency representation, each numFrames x freqBins.
// Consumers treat it as read-only.
type Spectrum struct {
	Real [][]float64
	Imag [][]float64
}

// NumFrames returns the number of analysis frames
func (s Spectrum) NumFrames() int {
	return len(s.Real)
}

// FreqBins returns the number of one-sided frequency bins
func (s Spectrum) FreqBins() int {
	if len(s.Real) == 0 {
		return 0
	}
	return len(s.Real[0])
}

// Power returns the per-frame, per-bin power spectrum re^2 + im^2
func (s Spectrum) Power() [][]float64 {
	power := make([][]float64, len(s.Real))
	for t := range s.Real {
		power[t] = make([]float64, len(s.Real[t]))
		for f := range s.Real[t] {
			re := s.Real[t][f]
			im := s.Imag[t][f]
			power[t][f] = re*re + im*im
		}
	}
	return power
}

// Magnitude returns the per-frame, per-bin magnitude spectrum
func (s Spectrum) Magnitude() [][]float64 {
	magnitude := make([][]float64, len(s.Real))
	for t := range s.Real {
		magnitude[t] = make([]float64, len(s.Real[t]))
		for f := range s.Real[t] {
			magnitude[t][f] = math.Hypot(s.Real[t][f], s.Imag[t][f])
		}
	}
	return magnitude
}

// Phase returns the per-frame, per-bin phase spectrum in radians
func (s Spectrum) Phase() [][]float64 {
	phase := make([][]float64, len(s.Real))
	for t := range s.Real {
		phase[t] = make([]float64, len(s.Real[t]))
		for f := range s.Real[t] {
			phase[t][f] = math.Atan2(s.Imag[t][f], s.Real[t][f])
		}
	}
	return phase
}
