package spectral

import (
	"errors"
	"math"
	"testing"

	"github.com/audiomend/apcsnr/algorithms/common"
	"github.com/audiomend/apcsnr/algorithms/windowing"
)

func TestBuildKernelsShapes(t *testing.T) {
	window, err := windowing.Build("hann", 400)
	if err != nil {
		t.Fatalf("window: %v", err)
	}

	bank, err := BuildKernels(400, 512, window)
	if err != nil {
		t.Fatalf("BuildKernels: %v", err)
	}

	if bank.FreqBins != 257 {
		t.Errorf("FreqBins: got %d, want 257", bank.FreqBins)
	}
	if len(bank.Forward) != 514 || len(bank.Inverse) != 514 {
		t.Errorf("kernel rows: got %d/%d, want 514", len(bank.Forward), len(bank.Inverse))
	}
	for c := range bank.Forward {
		if len(bank.Forward[c]) != 400 || len(bank.Inverse[c]) != 400 {
			t.Fatalf("row %d: kernel columns must equal frame length 400", c)
		}
	}
}

func TestBuildKernelsDefaultTransformSize(t *testing.T) {
	tests := []struct {
		frameLength int
		want        int
	}{
		{512, 512},
		{400, 512},
		{480, 512},
		{257, 512},
		{1024, 1024},
	}

	for _, tc := range tests {
		window, err := windowing.Build("hann", tc.frameLength)
		if err != nil {
			t.Fatalf("window: %v", err)
		}
		bank, err := BuildKernels(tc.frameLength, 0, window)
		if err != nil {
			t.Fatalf("BuildKernels(%d): %v", tc.frameLength, err)
		}
		if bank.TransformSize != tc.want {
			t.Errorf("frame %d: transform size got %d, want %d", tc.frameLength, bank.TransformSize, tc.want)
		}
	}
}

// With a rectangular window the stored kernels are the raw basis and its
// pseudo-inverse, so pinv(A)*A must be the identity over the frame axis.
func TestKernelPseudoInverseIdentity(t *testing.T) {
	const frameLength = 64
	const transformSize = 64

	window, err := windowing.Build("rectangular", frameLength)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	bank, err := BuildKernels(frameLength, transformSize, window)
	if err != nil {
		t.Fatalf("BuildKernels: %v", err)
	}

	for t1 := 0; t1 < frameLength; t1++ {
		for t2 := 0; t2 < frameLength; t2++ {
			product := 0.0
			for c := range bank.Inverse {
				product += bank.Inverse[c][t1] * bank.Forward[c][t2]
			}

			want := 0.0
			if t1 == t2 {
				want = 1.0
			}
			if math.Abs(product-want) > 1e-5 {
				t.Fatalf("pinv*A at (%d,%d): got %.8f, want %.0f", t1, t2, product, want)
			}
		}
	}
}

// Basis rows are cos(2*pi*k*t/N) stacked over -sin(2*pi*k*t/N)
func TestForwardKernelBasisValues(t *testing.T) {
	const frameLength = 32
	const transformSize = 32

	window, err := windowing.Build("rectangular", frameLength)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	bank, err := BuildKernels(frameLength, transformSize, window)
	if err != nil {
		t.Fatalf("BuildKernels: %v", err)
	}

	for k := 0; k < bank.FreqBins; k++ {
		for tt := 0; tt < frameLength; tt++ {
			angle := 2 * math.Pi * float64(k) * float64(tt) / float64(transformSize)
			if math.Abs(bank.Forward[k][tt]-math.Cos(angle)) > 1e-9 {
				t.Fatalf("real row %d col %d: got %.10f, want %.10f", k, tt, bank.Forward[k][tt], math.Cos(angle))
			}
			if math.Abs(bank.Forward[bank.FreqBins+k][tt]-(-math.Sin(angle))) > 1e-9 {
				t.Fatalf("imag row %d col %d: got %.10f, want %.10f", k, tt, bank.Forward[bank.FreqBins+k][tt], -math.Sin(angle))
			}
		}
	}
}

func TestBuildKernelsErrors(t *testing.T) {
	window, err := windowing.Build("hann", 64)
	if err != nil {
		t.Fatalf("window: %v", err)
	}

	tests := []struct {
		name          string
		frameLength   int
		transformSize int
		window        []float64
	}{
		{"zero frame length", 0, 64, window},
		{"negative frame length", -1, 64, window},
		{"transform smaller than frame", 64, 32, window},
		{"window length mismatch", 128, 128, window},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildKernels(tc.frameLength, tc.transformSize, tc.window)
			if err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
			var cfgErr *common.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %T", err)
			}
		})
	}
}
