package spectral

import (
	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/mat"

	"github.com/audiomend/apcsnr/algorithms/common"
)

// machine epsilon for float64, used as the pseudo-inverse rank cutoff base
const float64Eps = 2.220446049250313e-16

// KernelBank holds the forward analysis and inverse synthesis kernels of one
// transform configuration. Each kernel is (2*FreqBins) x FrameLength: the
// first FreqBins rows are real-part basis responses, the rest imaginary-part
// responses, pre-multiplied by the analysis window.
//
// The bank is read on every transform call but never mutated by the engine,
// so a caller-side optimizer may update the buffers between calls (the
// non-frozen filterbank variant) as long as shapes stay fixed.
type KernelBank struct {
	Forward [][]float64
	Inverse [][]float64

	FrameLength   int
	TransformSize int
	FreqBins      int
}

// BuildKernels constructs the forward and inverse convolution kernels for a
// frameLength-sample analysis frame at the given transform size.
//
// The forward basis is the one-sided DFT of transformSize points restricted
// to the first frameLength samples, obtained by transforming identity
// impulses with the real FFT. The inverse kernel is the Moore-Penrose
// pseudo-inverse of the UNWINDOWED forward kernel, transposed back to kernel
// orientation. Both kernels are windowed after that step; windowing before
// the pseudo-inverse breaks exact reconstruction.
//
// transformSize == 0 defaults to the next power of two >= frameLength.
func BuildKernels(frameLength, transformSize int, window []float64) (*KernelBank, error) {
	if frameLength <= 0 {
		return nil, common.Configf("frame length must be positive, got %d", frameLength)
	}
	if transformSize == 0 {
		transformSize = common.NextPowerOfTwo(frameLength)
	}
	if transformSize < frameLength {
		return nil, common.Configf("transform size %d smaller than frame length %d", transformSize, frameLength)
	}
	if len(window) != frameLength {
		return nil, common.Configf("window length %d does not match frame length %d", len(window), frameLength)
	}

	freqBins := transformSize/2 + 1
	rows := 2 * freqBins

	// Unwindowed basis: row k is cos(2*pi*k*t/N) over t, row freqBins+k is
	// -sin(2*pi*k*t/N), read off the real FFT of identity impulses.
	basis := make([][]float64, rows)
	for c := 0; c < rows; c++ {
		basis[c] = make([]float64, frameLength)
	}

	impulse := make([]float64, transformSize)
	for t := 0; t < frameLength; t++ {
		impulse[t] = 1
		spectrum := fft.FFTReal(impulse)
		impulse[t] = 0

		for k := 0; k < freqBins; k++ {
			basis[k][t] = real(spectrum[k])
			basis[freqBins+k][t] = imag(spectrum[k])
		}
	}

	pinv, err := pseudoInverse(basis, rows, frameLength)
	if err != nil {
		return nil, err
	}

	forward := make([][]float64, rows)
	inverse := make([][]float64, rows)
	for c := 0; c < rows; c++ {
		forward[c] = make([]float64, frameLength)
		inverse[c] = make([]float64, frameLength)
		for t := 0; t < frameLength; t++ {
			forward[c][t] = basis[c][t] * window[t]
			inverse[c][t] = pinv.At(t, c) * window[t]
		}
	}

	return &KernelBank{
		Forward:       forward,
		Inverse:       inverse,
		FrameLength:   frameLength,
		TransformSize: transformSize,
		FreqBins:      freqBins,
	}, nil
}

// pseudoInverse computes the Moore-Penrose pseudo-inverse of the rows x cols
// matrix a via thin SVD, returning a cols x rows matrix.
func pseudoInverse(a [][]float64, rows, cols int) (*mat.Dense, error) {
	flat := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		copy(flat[r*cols:(r+1)*cols], a[r])
	}
	m := mat.NewDense(rows, cols, flat)

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return nil, common.Configf("SVD of %dx%d kernel matrix failed to converge", rows, cols)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	larger := rows
	if cols > larger {
		larger = cols
	}
	tol := float64(larger) * float64Eps * values[0]

	r := len(values)
	d := mat.NewDense(r, r, nil)
	for i, s := range values {
		if s > tol {
			d.Set(i, i, 1/s)
		}
	}

	var tmp, pinv mat.Dense
	tmp.Mul(&v, d)
	pinv.Mul(&tmp, u.T())
	return &pinv, nil
}
