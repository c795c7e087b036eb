package spectral

import (
	"gonum.org/v1/gonum/floats"

	"github.com/audiomend/apcsnr/algorithms/common"
	"github.com/audiomend/apcsnr/algorithms/windowing"
	"github.com/audiomend/apcsnr/logging"
)

// overlap-add normalization guard against near-zero window-power divisors
const normEps = 1e-8

// Engine performs short-time analysis and overlap-add synthesis with fixed
// convolution kernels. Kernels and window are built once at construction and
// shared read-only across calls; the engine itself holds no per-call state.
type Engine struct {
	frameLength   int
	hopLength     int
	transformSize int
	pad           int
	centered      bool
	windowName    string
	window        []float64
	kernels       *KernelBank
	logger        logging.Logger
}

// EngineOption customizes engine construction
type EngineOption func(*Engine)

// WithoutCentering disables the frameLength/2 zero padding on each side of
// the input before analysis
func WithoutCentering() EngineOption {
	return func(e *Engine) {
		e.centered = false
	}
}

// WithLogger overrides the global logger for this engine
func WithLogger(logger logging.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithKernelBank substitutes a caller-managed kernel bank for the one built
// from the window, e.g. a trainable filterbank updated between calls
func WithKernelBank(kernels *KernelBank) EngineOption {
	return func(e *Engine) {
		e.kernels = kernels
	}
}

// NewEngine builds an analysis/synthesis engine. transformSize == 0 defaults
// to the next power of two >= frameLength. The window name accepts any
// family recognized by windowing.Build; a matched "<family> sqrt" window on
// analysis and synthesis gives perfect reconstruction up to padding trim.
func NewEngine(frameLength, hopLength, transformSize int, windowName string, opts ...EngineOption) (*Engine, error) {
	if hopLength <= 0 {
		return nil, common.Configf("hop length must be positive, got %d", hopLength)
	}

	window, err := windowing.Build(windowName, frameLength)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		frameLength:   frameLength,
		hopLength:     hopLength,
		transformSize: transformSize,
		centered:      true,
		windowName:    windowName,
		window:        window,
		logger:        logging.GetGlobalLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.kernels == nil {
		e.kernels, err = BuildKernels(frameLength, transformSize, window)
		if err != nil {
			return nil, err
		}
	} else if e.kernels.FrameLength != frameLength {
		return nil, common.Configf("kernel bank frame length %d does not match engine frame length %d", e.kernels.FrameLength, frameLength)
	}
	e.transformSize = e.kernels.TransformSize

	if e.centered {
		e.pad = frameLength / 2
	}

	e.logger.Debug("transform engine configured", logging.Fields{
		"frame_length":   e.frameLength,
		"hop_length":     e.hopLength,
		"transform_size": e.transformSize,
		"window":         e.windowName,
		"centered":       e.centered,
	})

	return e, nil
}

// Analyze computes the time-frequency representation of a batch of
// equal-length signals: zero padding on each side when centered, then a
// strided sliding dot product with the forward kernel at the hop length.
func (e *Engine) Analyze(batch [][]float64) ([]Spectrum, error) {
	if len(batch) == 0 {
		return nil, common.Shapef("empty batch")
	}

	sigLen := len(batch[0])
	for i, signal := range batch {
		if len(signal) != sigLen {
			return nil, common.Shapef("ragged batch: item %d has length %d, expected %d", i, len(signal), sigLen)
		}
	}

	paddedLen := sigLen + 2*e.pad
	if paddedLen < e.frameLength {
		return nil, common.Shapef("signal length %d shorter than one %d-sample frame", sigLen, e.frameLength)
	}
	numFrames := (paddedLen-e.frameLength)/e.hopLength + 1
	freqBins := e.kernels.FreqBins

	specs := make([]Spectrum, len(batch))
	padded := make([]float64, paddedLen)

	for b, signal := range batch {
		for i := range padded {
			padded[i] = 0
		}
		copy(padded[e.pad:], signal)

		spec := Spectrum{
			Real: make([][]float64, numFrames),
			Imag: make([][]float64, numFrames),
		}
		for j := 0; j < numFrames; j++ {
			spec.Real[j] = make([]float64, freqBins)
			spec.Imag[j] = make([]float64, freqBins)

			frame := padded[j*e.hopLength : j*e.hopLength+e.frameLength]
			for k := 0; k < freqBins; k++ {
				spec.Real[j][k] = floats.Dot(e.kernels.Forward[k], frame)
				spec.Imag[j][k] = floats.Dot(e.kernels.Forward[freqBins+k], frame)
			}
		}
		specs[b] = spec
	}

	return specs, nil
}

// AnalyzeChannels analyzes multi-channel signals by flattening the channel
// axis into the batch, so per-channel numbers are identical to Analyze
func (e *Engine) AnalyzeChannels(batch [][][]float64) ([][]Spectrum, error) {
	if len(batch) == 0 {
		return nil, common.Shapef("empty batch")
	}
	channels := len(batch[0])
	if channels == 0 {
		return nil, common.Shapef("item 0 has no channels")
	}
	for i, item := range batch {
		if len(item) != channels {
			return nil, common.Shapef("ragged batch: item %d has %d channels, expected %d", i, len(item), channels)
		}
	}

	flat := make([][]float64, 0, len(batch)*channels)
	for _, item := range batch {
		flat = append(flat, item...)
	}

	specs, err := e.Analyze(flat)
	if err != nil {
		return nil, err
	}

	grouped := make([][]Spectrum, len(batch))
	for b := range batch {
		grouped[b] = specs[b*channels : (b+1)*channels]
	}
	return grouped, nil
}

// Synthesize reconstructs time-domain signals from spectra by the transpose
// strided dot product (overlap-add), normalized by the overlap-added sum of
// squared windows, with the centering pad stripped from each end.
func (e *Engine) Synthesize(specs []Spectrum) ([][]float64, error) {
	if len(specs) == 0 {
		return nil, common.Shapef("empty batch")
	}

	freqBins := e.kernels.FreqBins
	numFrames := specs[0].NumFrames()
	for b, spec := range specs {
		if spec.NumFrames() == 0 {
			return nil, common.Shapef("item %d has no frames", b)
		}
		if spec.NumFrames() != numFrames {
			return nil, common.Shapef("ragged batch: item %d has %d frames, expected %d", b, spec.NumFrames(), numFrames)
		}
		if spec.FreqBins() != freqBins {
			return nil, common.Shapef("item %d has %d frequency bins, engine expects %d", b, spec.FreqBins(), freqBins)
		}
	}

	outLen := (numFrames-1)*e.hopLength + e.frameLength

	// Window-power normalization curve, identical for every batch item
	norm := make([]float64, outLen)
	windowSq := make([]float64, e.frameLength)
	for t, w := range e.window {
		windowSq[t] = w * w
	}
	for j := 0; j < numFrames; j++ {
		floats.Add(norm[j*e.hopLength:j*e.hopLength+e.frameLength], windowSq)
	}

	out := make([][]float64, len(specs))
	for b, spec := range specs {
		signal := make([]float64, outLen)
		for j := 0; j < numFrames; j++ {
			segment := signal[j*e.hopLength : j*e.hopLength+e.frameLength]
			for k := 0; k < freqBins; k++ {
				floats.AddScaled(segment, spec.Real[j][k], e.kernels.Inverse[k])
				floats.AddScaled(segment, spec.Imag[j][k], e.kernels.Inverse[freqBins+k])
			}
		}

		for i := range signal {
			signal[i] /= norm[i] + normEps
		}

		if e.pad > 0 {
			signal = signal[e.pad : outLen-e.pad]
		}
		out[b] = signal
	}

	return out, nil
}

// RoundTrip analyzes and immediately resynthesizes a batch
func (e *Engine) RoundTrip(batch [][]float64) ([][]float64, error) {
	specs, err := e.Analyze(batch)
	if err != nil {
		return nil, err
	}
	return e.Synthesize(specs)
}

// AlignedLength returns the largest multiple of the hop length <= n, the
// synthesizable prefix of an n-sample signal
func (e *Engine) AlignedLength(n int) int {
	if n < 0 {
		return 0
	}
	return (n / e.hopLength) * e.hopLength
}

// NumFrames returns the number of analysis frames produced for a signal of
// the given length, including centering padding
func (e *Engine) NumFrames(sigLen int) int {
	paddedLen := sigLen + 2*e.pad
	if paddedLen < e.frameLength {
		return 0
	}
	return (paddedLen-e.frameLength)/e.hopLength + 1
}

// FreqBins returns the number of one-sided frequency bins
func (e *Engine) FreqBins() int {
	return e.kernels.FreqBins
}

// FrameLength returns the analysis frame length in samples
func (e *Engine) FrameLength() int {
	return e.frameLength
}

// HopLength returns the hop length in samples
func (e *Engine) HopLength() int {
	return e.hopLength
}

// TransformSize returns the transform size in samples
func (e *Engine) TransformSize() int {
	return e.transformSize
}

// FreqResolution returns Hz per frequency bin at the given sample rate
func (e *Engine) FreqResolution(sampleRate int) float64 {
	return float64(sampleRate) / float64(e.transformSize)
}

// TimeResolution returns seconds per frame at the given sample rate
func (e *Engine) TimeResolution(sampleRate int) float64 {
	return float64(e.hopLength) / float64(sampleRate)
}

// Window returns a copy of the analysis window
func (e *Engine) Window() []float64 {
	window := make([]float64, len(e.window))
	copy(window, e.window)
	return window
}

// Kernels returns the engine's kernel bank. The engine only reads it, so a
// caller may update the buffers between calls.
func (e *Engine) Kernels() *KernelBank {
	return e.kernels
}

// Prepare returns an engine bound to the caller's compute context, sharing
// the read-only kernel bank. The in-process context is the only placement
// built in; accelerator placements would copy the kernels before binding.
func (e *Engine) Prepare() *Engine {
	bound := *e
	return &bound
}
