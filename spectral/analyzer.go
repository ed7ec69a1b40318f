package spectral

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/RyanBlaney/sonido-scope/logging"
	"github.com/RyanBlaney/sonido-scope/render"
)

// power floor before the dB conversion, avoids log(0)
const powerFloor = 1e-12

// Analyzer computes mel spectrograms in decibels. It implements
// render.Primitive and carries no per-call state beyond a filter bank cache,
// so one instance can serve every render request of an engine.
type Analyzer struct {
	logger logging.Logger

	// filter bank and window are rebuilt only when the params change
	bankParams render.AnalysisParams
	filterBank [][]float64
	win        []float64
	winGain    float64
}

// NewAnalyzer creates a mel spectrogram analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		logger: logging.WithFields(logging.Fields{"component": "spectral"}),
	}
}

// MelSpectrogramDB computes one dB mel vector per analysis frame. Frames are
// spaced HopLength samples apart and each covers NFFT samples; no centering
// is applied, so numFrames = (len(samples)-NFFT)/HopLength + 1. The result
// uses an absolute full-scale reference (a full-scale sine lands near 0 dB)
// with a -TopDB floor. The absolute reference keeps the output of a frame
// dependent only on the samples under its own window, which is what allows
// the caller to stitch separately computed segments without seams.
//
// Returns no rows when the slice is shorter than one window.
func (a *Analyzer) MelSpectrogramDB(samples []float32, p render.AnalysisParams) ([][]float32, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(samples) < p.NFFT {
		return nil, nil
	}

	a.prepare(p)

	numFrames := (len(samples)-p.NFFT)/p.HopLength + 1
	numBins := p.NFFT/2 + 1
	dbFloor := -p.TopDB

	out := make([][]float32, numFrames)
	frame := make([]float64, p.NFFT)
	power := make([]float64, numBins)

	for f := range out {
		start := f * p.HopLength
		for i := range frame {
			frame[i] = float64(samples[start+i]) * a.win[i]
		}

		spectrum := fft.FFTReal(frame)
		for i := range power {
			re, im := real(spectrum[i]), imag(spectrum[i])
			// normalize by window gain so magnitudes read as full-scale fractions
			mag := 2.0 * math.Sqrt(re*re+im*im) / a.winGain
			power[i] = mag * mag
		}

		mel := ApplyFilterBank(power, a.filterBank)

		row := make([]float32, p.NMels)
		for m, v := range mel {
			db := 10.0 * math.Log10(math.Max(v, powerFloor))
			if db < dbFloor {
				db = dbFloor
			}
			row[m] = float32(db)
		}
		out[f] = row
	}

	return out, nil
}

// prepare rebuilds the window and filter bank when params change
func (a *Analyzer) prepare(p render.AnalysisParams) {
	if p == a.bankParams && a.filterBank != nil {
		return
	}

	a.win = paddedHann(p.WinLength, p.NFFT)
	a.winGain = 0.0
	for _, c := range a.win {
		a.winGain += c
	}
	if a.winGain <= 0 {
		a.winGain = 1.0
	}

	a.filterBank = MelFilterBank(p.NMels, p.NFFT, p.SampleRate, p.FMin, p.FMax)
	a.bankParams = p

	a.logger.Debug("prepared analyzer", logging.Fields{
		"n_fft":  p.NFFT,
		"n_mels": p.NMels,
		"f_min":  p.FMin,
		"f_max":  p.FMax,
	})
}

// paddedHann returns a Hann window of winLength samples centered in a
// zero-padded buffer of fftSize samples
func paddedHann(winLength, fftSize int) []float64 {
	w := window.Hann(winLength)
	if winLength == fftSize {
		return w
	}

	padded := make([]float64, fftSize)
	copy(padded[(fftSize-winLength)/2:], w)
	return padded
}

// FrameCount returns the number of frames MelSpectrogramDB would produce
func FrameCount(numSamples int, p render.AnalysisParams) (int, error) {
	if p.NFFT <= 0 || p.HopLength <= 0 {
		return 0, fmt.Errorf("%w: n_fft and hop_length must be positive", render.ErrInvalidParams)
	}
	if numSamples < p.NFFT {
		return 0, nil
	}
	return (numSamples-p.NFFT)/p.HopLength + 1, nil
}
