package loss

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/audiomend/apcsnr/algorithms/common"
	"github.com/audiomend/apcsnr/algorithms/spectral"
	"github.com/audiomend/apcsnr/logging"
)

const (
	// snrEps guards the projection and log denominators
	snrEps = 1e-8

	// frame weights for the voice-activity variant
	vadActiveWeight   = 1.0
	vadInactiveWeight = 0.1

	// windowName is the matched analysis window on every resolution; the
	// sqrt pair keeps the per-resolution transforms perfect-reconstruction
	windowName = "hann sqrt"
)

// Config describes the resolutions of a Compositor. The model resolution
// matches the enhancement network's own transform; AuxHops add supervision
// resolutions at other hop sizes. Theta and MagBins+1 configure the external
// acoustic scaler.
type Config struct {
	FrameLength int     `json:"frame_length"`
	ModelHop    int     `json:"model_hop"`
	MagBins     int     `json:"mag_bins"`
	Theta       float64 `json:"theta"`
	AuxHops     []int   `json:"aux_hops,omitempty"`
}

// Compositor aggregates an acoustically scaled scale-invariant SNR and a
// perceptual quality score over one or more analysis resolutions. It is
// stateless across calls: engines, kernels and collaborators are fixed at
// construction.
type Compositor struct {
	cfg    Config
	model  *spectral.Engine
	aux    []*spectral.Engine
	scaler AcousticScaler
	scorer PerceptualScorer
	logger logging.Logger
}

// Option customizes Compositor construction
type Option func(*Compositor)

// WithLogger overrides the global logger for this compositor
func WithLogger(logger logging.Logger) Option {
	return func(c *Compositor) {
		c.logger = logger
	}
}

// New builds a Compositor owning one analysis engine per configured hop
// size. Hops equal to the model hop, and duplicates within AuxHops, collapse
// to a single engine so no resolution is counted twice.
func New(cfg Config, scaler AcousticScaler, scorer PerceptualScorer, opts ...Option) (*Compositor, error) {
	if cfg.FrameLength <= 0 {
		return nil, common.Configf("frame length must be positive, got %d", cfg.FrameLength)
	}
	if cfg.ModelHop <= 0 {
		return nil, common.Configf("model hop must be positive, got %d", cfg.ModelHop)
	}
	if cfg.MagBins <= 0 {
		return nil, common.Configf("mag bins must be positive, got %d", cfg.MagBins)
	}
	if scaler == nil {
		return nil, common.Configf("acoustic scaler is required")
	}
	if scorer == nil {
		return nil, common.Configf("perceptual scorer is required")
	}

	c := &Compositor{
		cfg:    cfg,
		scaler: scaler,
		scorer: scorer,
		logger: logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	transformSize := cfg.MagBins * 2

	var err error
	c.model, err = spectral.NewEngine(cfg.FrameLength, cfg.ModelHop, transformSize, windowName, spectral.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}

	seen := map[int]bool{cfg.ModelHop: true}
	for _, hop := range cfg.AuxHops {
		if hop <= 0 {
			return nil, common.Configf("auxiliary hop must be positive, got %d", hop)
		}
		if seen[hop] {
			continue
		}
		seen[hop] = true

		engine, err := spectral.NewEngine(cfg.FrameLength, hop, transformSize, windowName, spectral.WithLogger(c.logger))
		if err != nil {
			return nil, err
		}
		c.aux = append(c.aux, engine)
	}

	c.logger.Debug("loss compositor configured", logging.Fields{
		"frame_length": cfg.FrameLength,
		"model_hop":    cfg.ModelHop,
		"mag_bins":     cfg.MagBins,
		"theta":        cfg.Theta,
		"resolutions":  1 + len(c.aux),
	})

	return c, nil
}

// Resolutions returns the number of distinct analysis resolutions
func (c *Compositor) Resolutions() int {
	return 1 + len(c.aux)
}

// ModelEngine returns the engine at the model resolution
func (c *Compositor) ModelEngine() *spectral.Engine {
	return c.model
}

// Score computes the acoustically scaled SI-SNR loss and the perceptual
// quality score of an estimate against a clean reference, averaged without
// weighting across the model and auxiliary resolutions. The SNR loss is the
// negative batch-mean SNR, so minimizing it maximizes SNR.
func (c *Compositor) Score(est, clean [][]float64) (snrLoss, perceptualLoss float64, err error) {
	est, err = alignBatch(est, clean)
	if err != nil {
		return 0, 0, err
	}

	engines := append([]*spectral.Engine{c.model}, c.aux...)
	for _, engine := range engines {
		snr, perceptual, err := c.scoreResolution(engine, est, clean, nil)
		if err != nil {
			return 0, 0, err
		}
		snrLoss += snr
		perceptualLoss += perceptual
	}

	n := float64(len(engines))
	return snrLoss / n, perceptualLoss / n, nil
}

// ScoreWithVAD computes the model-resolution loss with a per-frame weight
// mask derived from a voice-activity indicator signal: frames whose VAD
// frame-sum is positive weigh 1.0, silent frames 0.1, and frames past the
// indicator's framed length weigh 0.
func (c *Compositor) ScoreWithVAD(est, clean, vad [][]float64) (snrLoss, perceptualLoss float64, err error) {
	est, err = alignBatch(est, clean)
	if err != nil {
		return 0, 0, err
	}
	if len(vad) != len(clean) {
		return 0, 0, common.Shapef("vad batch size %d does not match signal batch size %d", len(vad), len(clean))
	}

	mask := c.vadMask(vad, c.model.NumFrames(len(clean[0])))
	return c.scoreResolution(c.model, est, clean, mask)
}

// scoreResolution evaluates one resolution: perceptual score on the power
// spectra, acoustic scaling, then projection-based SNR on the scaled
// complex spectra.
func (c *Compositor) scoreResolution(engine *spectral.Engine, est, clean [][]float64, vadMask [][]float64) (float64, float64, error) {
	estSpecs, err := engine.Analyze(est)
	if err != nil {
		return 0, 0, err
	}
	cleanSpecs, err := engine.Analyze(clean)
	if err != nil {
		return 0, 0, err
	}

	estPower := make([][][]float64, len(estSpecs))
	cleanPower := make([][][]float64, len(cleanSpecs))
	for b := range estSpecs {
		estPower[b] = estSpecs[b].Power()
		cleanPower[b] = cleanSpecs[b].Power()
	}

	scores, err := c.scorer.Score(estPower, cleanPower, vadMask)
	if err != nil {
		return 0, 0, err
	}
	perceptual := meanOfFrames(scores)

	estScale, cleanScale, err := c.scaler.Scale(estPower, cleanPower)
	if err != nil {
		return 0, 0, err
	}

	snr, err := scaledSpectralSNR(estSpecs, cleanSpecs, estScale, cleanScale)
	if err != nil {
		return 0, 0, err
	}

	return snr, perceptual, nil
}

// scaledSpectralSNR flattens each item's scaled complex spectrum into one
// vector, decomposes the estimate into target and error by orthogonal
// projection onto the clean spectrum, and returns the negative batch-mean
// 10*log10 target/error energy ratio.
func scaledSpectralSNR(estSpecs, cleanSpecs []spectral.Spectrum, estScale, cleanScale [][][]float64) (float64, error) {
	if len(estScale) != len(estSpecs) || len(cleanScale) != len(cleanSpecs) {
		return 0, common.Shapef("scaler returned %d/%d items for a batch of %d", len(estScale), len(cleanScale), len(estSpecs))
	}

	snrs := make([]float64, len(estSpecs))
	for b := range estSpecs {
		s1, err := flattenScaled(estSpecs[b], estScale[b])
		if err != nil {
			return 0, err
		}
		s2, err := flattenScaled(cleanSpecs[b], cleanScale[b])
		if err != nil {
			return 0, err
		}

		projection := floats.Dot(s1, s2) / (floats.Dot(s2, s2) + snrEps)

		target := make([]float64, len(s2))
		floats.AddScaled(target, projection, s2)

		noise := make([]float64, len(s1))
		copy(noise, s1)
		floats.Sub(noise, target)

		targetNorm := floats.Dot(target, target)
		noiseNorm := floats.Dot(noise, noise)
		snrs[b] = 10 * math.Log10(targetNorm/(noiseNorm+snrEps)+snrEps)
	}

	return -stat.Mean(snrs, nil), nil
}

// flattenScaled applies per-frame, per-bin scale factors to both complex
// channels and flattens the spectrum into a single vector
func flattenScaled(spec spectral.Spectrum, scale [][]float64) ([]float64, error) {
	numFrames := spec.NumFrames()
	freqBins := spec.FreqBins()
	if len(scale) != numFrames {
		return nil, common.Shapef("scale has %d frames, spectrum has %d", len(scale), numFrames)
	}

	flat := make([]float64, 0, 2*numFrames*freqBins)
	for t := 0; t < numFrames; t++ {
		if len(scale[t]) != freqBins {
			return nil, common.Shapef("scale frame %d has %d bins, spectrum has %d", t, len(scale[t]), freqBins)
		}
		for f := 0; f < freqBins; f++ {
			flat = append(flat, spec.Real[t][f]*scale[t][f])
		}
		for f := 0; f < freqBins; f++ {
			flat = append(flat, spec.Imag[t][f]*scale[t][f])
		}
	}
	return flat, nil
}

// vadMask frames the raw voice-activity signal without padding and maps
// frame sums to weights; frames beyond the framed length stay at zero
func (c *Compositor) vadMask(vad [][]float64, specFrames int) [][]float64 {
	frameLength := c.model.FrameLength()
	hopLength := c.model.HopLength()

	mask := make([][]float64, len(vad))
	for b, indicator := range vad {
		mask[b] = make([]float64, specFrames)

		vadFrames := 0
		if len(indicator) >= frameLength {
			vadFrames = (len(indicator)-frameLength)/hopLength + 1
		}
		if vadFrames > specFrames {
			vadFrames = specFrames
		}

		for j := 0; j < vadFrames; j++ {
			frameSum := floats.Sum(indicator[j*hopLength : j*hopLength+frameLength])
			if frameSum > 0 {
				mask[b][j] = vadActiveWeight
			} else {
				mask[b][j] = vadInactiveWeight
			}
		}
	}
	return mask
}

// alignBatch validates batch shapes and truncates each estimate to its clean
// reference's length
func alignBatch(est, clean [][]float64) ([][]float64, error) {
	if len(est) == 0 || len(clean) == 0 {
		return nil, common.Shapef("empty batch")
	}
	if len(est) != len(clean) {
		return nil, common.Shapef("estimate batch size %d does not match clean batch size %d", len(est), len(clean))
	}

	aligned := make([][]float64, len(est))
	for b := range est {
		if len(est[b]) < len(clean[b]) {
			return nil, common.Shapef("item %d: estimate length %d shorter than clean length %d", b, len(est[b]), len(clean[b]))
		}
		aligned[b] = est[b][:len(clean[b])]
	}
	return aligned, nil
}

// meanOfFrames averages per-frame scores over every frame of every item
func meanOfFrames(scores [][]float64) float64 {
	sum := 0.0
	count := 0
	for _, frames := range scores {
		sum += floats.Sum(frames)
		count += len(frames)
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
