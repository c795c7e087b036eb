package windowing

import "math"

// Hamming represents a Hamming window function
type Hamming struct {
	size         int
	periodic     bool
	coefficients []float64
}

// NewHamming creates a new Hamming window
func NewHamming(size int, periodic bool) *Hamming {
	h := &Hamming{
		size:     size,
		periodic: periodic,
	}
	h.generate()
	return h
}

func (h *Hamming) generate() {
	h.coefficients = make([]float64, h.size)

	denominator := float64(h.size - 1)
	if h.periodic {
		denominator = float64(h.size)
	}

	for i := 0; i < h.size; i++ {
		h.coefficients[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/denominator)
	}
}

// Coefficients returns a copy of the window coefficients
func (h *Hamming) Coefficients() []float64 {
	coeffs := make([]float64, len(h.coefficients))
	copy(coeffs, h.coefficients)
	return coeffs
}

// Size returns the window size
func (h *Hamming) Size() int {
	return h.size
}

// Name returns the window family name
func (h *Hamming) Name() string {
	return "hamming"
}
