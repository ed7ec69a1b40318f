package render

import (
	"errors"
	"fmt"
)

// TileFrames is the fixed tile width in analysis frames. Tiles shorter than
// this only occur at the end of a requested window.
const TileFrames = 1024

var (
	// ErrNotLoaded is returned when a render references a file id whose PCM
	// has not been delivered yet. Recoverable: load the PCM and re-issue.
	ErrNotLoaded = errors.New("pcm not loaded")

	// ErrInvalidParams is returned for analysis or request parameters that
	// fail validation. Not retried.
	ErrInvalidParams = errors.New("invalid params")

	// ErrPrimitiveFailure wraps errors raised inside the spectral primitive.
	// No tiles from the failed call are committed to the cache.
	ErrPrimitiveFailure = errors.New("spectral primitive failure")
)

// AnalysisParams describes one spectral analysis configuration. The struct is
// comparable and is embedded directly in tile cache keys, so two requests
// share cache entries only when every analysis field matches exactly.
// Display-only parameters live in DisplayParams and never reach the cache.
type AnalysisParams struct {
	SampleRate int     `json:"sample_rate"`
	NFFT       int     `json:"n_fft"`
	WinLength  int     `json:"win_length"`
	HopLength  int     `json:"hop_length"`
	FMin       float64 `json:"f_min"`
	FMax       float64 `json:"f_max"`
	NMels      int     `json:"n_mels"`
	TopDB      float64 `json:"top_db"`
}

// DefaultAnalysisParams returns sensible defaults for the given sample rate
func DefaultAnalysisParams(sampleRate int) AnalysisParams {
	return AnalysisParams{
		SampleRate: sampleRate,
		NFFT:       1024,
		WinLength:  1024,
		HopLength:  256,
		FMin:       10.0,
		FMax:       float64(sampleRate) / 2.0,
		NMels:      128,
		TopDB:      80.0,
	}
}

// Validate checks the parameter invariants: everything positive,
// f_min < f_max <= Nyquist, win_length <= n_fft.
func (p AnalysisParams) Validate() error {
	switch {
	case p.SampleRate <= 0:
		return fmt.Errorf("%w: sample_rate must be positive, got %d", ErrInvalidParams, p.SampleRate)
	case p.NFFT <= 0:
		return fmt.Errorf("%w: n_fft must be positive, got %d", ErrInvalidParams, p.NFFT)
	case p.WinLength <= 0:
		return fmt.Errorf("%w: win_length must be positive, got %d", ErrInvalidParams, p.WinLength)
	case p.HopLength <= 0:
		return fmt.Errorf("%w: hop_length must be positive, got %d", ErrInvalidParams, p.HopLength)
	case p.NMels < 1:
		return fmt.Errorf("%w: n_mels must be at least 1, got %d", ErrInvalidParams, p.NMels)
	case p.TopDB <= 0:
		return fmt.Errorf("%w: top_db must be positive, got %g", ErrInvalidParams, p.TopDB)
	case p.FMin <= 0:
		return fmt.Errorf("%w: f_min must be positive, got %g", ErrInvalidParams, p.FMin)
	}

	if p.WinLength > p.NFFT {
		return fmt.Errorf("%w: win_length (%d) exceeds n_fft (%d)", ErrInvalidParams, p.WinLength, p.NFFT)
	}

	nyquist := float64(p.SampleRate) / 2.0
	if p.FMin >= p.FMax {
		return fmt.Errorf("%w: f_min (%g) must be below f_max (%g)", ErrInvalidParams, p.FMin, p.FMax)
	}
	if p.FMax > nyquist {
		return fmt.Errorf("%w: f_max (%g) exceeds Nyquist (%g)", ErrInvalidParams, p.FMax, nyquist)
	}

	return nil
}

// DisplayParams controls the final pixel mapping only. Never cached.
type DisplayParams struct {
	DynamicGain    bool    `json:"dynamic_gain"`
	GainPercentile float64 `json:"gain_percentile"` // upper bound percentile, 0-100
	AutoGamma      bool    `json:"auto_gamma"`
	Gamma          float64 `json:"gamma"`
	Brightness     float64 `json:"brightness"`
	Contrast       float64 `json:"contrast"`
	Colormap       string  `json:"colormap"` // "magma", "viridis", "gray"
}

// DefaultDisplayParams returns a neutral display mapping
func DefaultDisplayParams() DisplayParams {
	return DisplayParams{
		DynamicGain:    false,
		GainPercentile: 99.5,
		AutoGamma:      false,
		Gamma:          1.0,
		Brightness:     0.0,
		Contrast:       1.0,
		Colormap:       "magma",
	}
}

// RenderRequest describes one viewport render. Consumed once.
type RenderRequest struct {
	FileID   string         `json:"file_id"`
	T0       float64        `json:"t0"`              // window start, seconds
	Duration float64        `json:"window_duration"` // window length, seconds
	Analysis AnalysisParams `json:"analysis"`
	Display  DisplayParams  `json:"display"`
}

// Validate checks the request on top of the analysis parameter invariants
func (r RenderRequest) Validate() error {
	if err := r.Analysis.Validate(); err != nil {
		return err
	}
	if r.T0 < 0 {
		return fmt.Errorf("%w: t0 must be non-negative, got %g", ErrInvalidParams, r.T0)
	}
	if r.Duration <= 0 {
		return fmt.Errorf("%w: window_duration must be positive, got %g", ErrInvalidParams, r.Duration)
	}
	return nil
}
