package windowing

import "math"

// Hann represents a Hann window function
type Hann struct {
	size         int
	periodic     bool
	coefficients []float64
}

// NewHann creates a new Hann window. Periodic (DFT-even) windows divide by
// size, symmetric windows by size-1; analysis kernels always use periodic.
func NewHann(size int, periodic bool) *Hann {
	h := &Hann{
		size:     size,
		periodic: periodic,
	}
	h.generate()
	return h
}

func (h *Hann) generate() {
	h.coefficients = make([]float64, h.size)

	denominator := float64(h.size - 1)
	if h.periodic {
		denominator = float64(h.size)
	}

	for i := 0; i < h.size; i++ {
		h.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denominator))
	}
}

// Coefficients returns a copy of the window coefficients
func (h *Hann) Coefficients() []float64 {
	coeffs := make([]float64, len(h.coefficients))
	copy(coeffs, h.coefficients)
	return coeffs
}

// Size returns the window size
func (h *Hann) Size() int {
	return h.size
}

// Name returns the window family name
func (h *Hann) Name() string {
	return "hann"
}
