package spectral

import (
	"errors"
	"math"
	"testing"

	"github.com/audiomend/apcsnr/algorithms/common"
)

// deterministic multi-tone test signal
func testTone(n int, sampleRate float64, freqs ...float64) []float64 {
	signal := make([]float64, n)
	for i := range signal {
		for j, f := range freqs {
			amp := 1.0 / float64(j+1)
			signal[i] += amp * math.Sin(2*math.Pi*f*float64(i)/sampleRate)
		}
	}
	return signal
}

func TestRoundTripCentered(t *testing.T) {
	engine, err := NewEngine(512, 256, 512, "hann sqrt")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	signal := testTone(16000, 16000, 220, 880, 3000)
	out, err := engine.RoundTrip([][]float64{signal})
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}

	if len(out) != 1 {
		t.Fatalf("batch size: got %d, want 1", len(out))
	}
	if len(out[0]) == 0 || len(out[0]) > len(signal) {
		t.Fatalf("unexpected output length %d for input %d", len(out[0]), len(signal))
	}

	for i, v := range out[0] {
		if math.Abs(v-signal[i]) > 1e-4 {
			t.Fatalf("sample %d: got %.8f, want %.8f", i, v, signal[i])
		}
	}
}

func TestRoundTripUncentered(t *testing.T) {
	engine, err := NewEngine(480, 160, 0, "hann sqrt", WithoutCentering())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	signal := testTone(10000, 16000, 440, 1250)
	out, err := engine.RoundTrip([][]float64{signal})
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}

	// without centering the first and last frames are ramp-only; check the
	// fully overlapped interior
	for i := 480; i < len(out[0])-480; i++ {
		if math.Abs(out[0][i]-signal[i]) > 1e-4 {
			t.Fatalf("sample %d: got %.8f, want %.8f", i, out[0][i], signal[i])
		}
	}
}

func TestAnalyzeSineScenario(t *testing.T) {
	engine, err := NewEngine(512, 256, 512, "hann sqrt")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	const sigLen = 16000
	signal := testTone(sigLen, 16000, 1000)

	specs, err := engine.Analyze([][]float64{signal})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	spec := specs[0]

	paddedLen := sigLen + 2*(512/2)
	wantFrames := 1 + (paddedLen-512)/256
	if spec.NumFrames() != wantFrames {
		t.Errorf("frames: got %d, want %d", spec.NumFrames(), wantFrames)
	}
	if engine.NumFrames(sigLen) != wantFrames {
		t.Errorf("NumFrames: got %d, want %d", engine.NumFrames(sigLen), wantFrames)
	}
	if spec.FreqBins() != 257 {
		t.Errorf("bins: got %d, want 257", spec.FreqBins())
	}

	// 1000 Hz at 16 kHz with a 512-point transform lands on bin 32
	magnitude := spec.Magnitude()
	mid := magnitude[spec.NumFrames()/2]
	domBin := 0
	for k, m := range mid {
		if m > mid[domBin] {
			domBin = k
		}
	}
	if domBin != 32 {
		t.Errorf("dominant bin: got %d, want 32", domBin)
	}
}

func TestAnalyzeChannelsMatchesAnalyze(t *testing.T) {
	engine, err := NewEngine(256, 128, 256, "hann sqrt")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	left := testTone(4000, 16000, 500)
	right := testTone(4000, 16000, 1500)

	grouped, err := engine.AnalyzeChannels([][][]float64{{left, right}})
	if err != nil {
		t.Fatalf("AnalyzeChannels: %v", err)
	}
	flat, err := engine.Analyze([][]float64{left, right})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(grouped) != 1 || len(grouped[0]) != 2 {
		t.Fatalf("unexpected grouping %dx%d", len(grouped), len(grouped[0]))
	}

	for ch := 0; ch < 2; ch++ {
		got, want := grouped[0][ch], flat[ch]
		for j := range want.Real {
			for k := range want.Real[j] {
				if got.Real[j][k] != want.Real[j][k] || got.Imag[j][k] != want.Imag[j][k] {
					t.Fatalf("channel %d frame %d bin %d differs from per-channel analysis", ch, j, k)
				}
			}
		}
	}
}

func TestAlignedLength(t *testing.T) {
	engine, err := NewEngine(512, 256, 512, "hann sqrt")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	tests := []struct {
		n    int
		want int
	}{
		{16000, 15872},
		{256, 256},
		{255, 0},
		{0, 0},
		{-5, 0},
	}
	for _, tc := range tests {
		if got := engine.AlignedLength(tc.n); got != tc.want {
			t.Errorf("AlignedLength(%d): got %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestEngineMetadata(t *testing.T) {
	engine, err := NewEngine(512, 256, 512, "hann sqrt")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if engine.FreqBins() != 257 {
		t.Errorf("FreqBins: got %d, want 257", engine.FreqBins())
	}
	if got := engine.FreqResolution(16000); got != 31.25 {
		t.Errorf("FreqResolution: got %f, want 31.25", got)
	}
	if got := engine.TimeResolution(16000); got != 0.016 {
		t.Errorf("TimeResolution: got %f, want 0.016", got)
	}
}

func TestPrepareSharesKernels(t *testing.T) {
	engine, err := NewEngine(256, 128, 256, "hann sqrt")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	bound := engine.Prepare()
	if bound == engine {
		t.Fatal("Prepare must return a distinct engine")
	}
	if bound.Kernels() != engine.Kernels() {
		t.Fatal("prepared engine must share the kernel bank")
	}
}

func TestWithKernelBank(t *testing.T) {
	donor, err := NewEngine(256, 128, 256, "hann sqrt")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	engine, err := NewEngine(256, 128, 256, "hann sqrt", WithKernelBank(donor.Kernels()))
	if err != nil {
		t.Fatalf("NewEngine with kernel bank: %v", err)
	}
	if engine.Kernels() != donor.Kernels() {
		t.Fatal("engine must read from the supplied kernel bank")
	}
}

func TestNewEngineErrors(t *testing.T) {
	tests := []struct {
		name          string
		frameLength   int
		hopLength     int
		transformSize int
		window        string
	}{
		{"zero hop", 512, 0, 512, "hann sqrt"},
		{"negative hop", 512, -1, 512, "hann sqrt"},
		{"bad window", 512, 256, 512, "flattop"},
		{"zero frame length", 0, 256, 512, "hann sqrt"},
		{"transform smaller than frame", 512, 256, 256, "hann sqrt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEngine(tc.frameLength, tc.hopLength, tc.transformSize, tc.window)
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

func TestAnalyzeShapeErrors(t *testing.T) {
	uncentered, err := NewEngine(512, 256, 512, "hann sqrt", WithoutCentering())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	tests := []struct {
		name  string
		batch [][]float64
	}{
		{"empty batch", nil},
		{"signal shorter than frame", [][]float64{make([]float64, 100)}},
		{"ragged batch", [][]float64{make([]float64, 1024), make([]float64, 2048)}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uncentered.Analyze(tc.batch)
			if err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
			var shapeErr *common.ShapeError
			if !errors.As(err, &shapeErr) {
				t.Fatalf("expected ShapeError, got %T", err)
			}
		})
	}
}

func TestSynthesizeShapeErrors(t *testing.T) {
	engine, err := NewEngine(256, 128, 256, "hann sqrt")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	specs, err := engine.Analyze([][]float64{testTone(2000, 16000, 700)})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	wrongBins := Spectrum{
		Real: [][]float64{make([]float64, 64)},
		Imag: [][]float64{make([]float64, 64)},
	}

	tests := []struct {
		name  string
		batch []Spectrum
	}{
		{"empty batch", nil},
		{"bin mismatch", []Spectrum{wrongBins}},
		{"ragged frames", []Spectrum{specs[0], wrongBins}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Synthesize(tc.batch)
			if err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
			var shapeErr *common.ShapeError
			if !errors.As(err, &shapeErr) {
				t.Fatalf("expected ShapeError, got %T", err)
			}
		})
	}
}
