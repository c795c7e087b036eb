package windowing

import (
	"math"
	"strings"

	"github.com/audiomend/apcsnr/algorithms/common"
)

// Family is a named window family able to produce fixed coefficients
type Family interface {
	Coefficients() []float64
	Size() int
	Name() string
}

// Build returns periodic (DFT-even) coefficients of the named family.
// A trailing " sqrt" suffix derives the elementwise square root of the base
// family, the dual window that satisfies constant overlap-add when the same
// window sits on both the analysis and synthesis side.
//
// Recognized families: "hann"/"hanning", "hamming", "rectangular".
func Build(name string, length int) ([]float64, error) {
	if length <= 0 {
		return nil, common.Configf("window length must be positive, got %d", length)
	}

	base := strings.ToLower(strings.TrimSpace(name))
	sqrt := false
	if s, ok := strings.CutSuffix(base, " sqrt"); ok {
		base = strings.TrimSpace(s)
		sqrt = true
	}

	var family Family
	switch base {
	case "hann", "hanning":
		family = NewHann(length, true)
	case "hamming":
		family = NewHamming(length, true)
	case "rectangular", "rect", "boxcar":
		family = NewRectangular(length)
	default:
		return nil, common.Configf("unrecognized window family %q", name)
	}

	coeffs := family.Coefficients()
	if sqrt {
		for i, c := range coeffs {
			coeffs[i] = math.Sqrt(c)
		}
	}

	return coeffs, nil
}
