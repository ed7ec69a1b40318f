package render

import "fmt"

// SampleBuffer holds the full decoded waveform for one file id
type SampleBuffer struct {
	FileID     string
	SampleRate int
	Samples    []float32
}

// Duration returns the buffer length in seconds
func (b *SampleBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// SampleStore owns the decoded PCM per file id. A buffer is set wholesale in
// one call and never partially mutated; redelivery replaces the prior entry.
// Only touched from the engine worker goroutine, so no locking.
type SampleStore struct {
	buffers map[string]*SampleBuffer
}

// NewSampleStore creates an empty store
func NewSampleStore() *SampleStore {
	return &SampleStore{buffers: make(map[string]*SampleBuffer)}
}

// Set replaces any prior entry for fileID
func (s *SampleStore) Set(fileID string, sampleRate int, samples []float32) {
	s.buffers[fileID] = &SampleBuffer{
		FileID:     fileID,
		SampleRate: sampleRate,
		Samples:    samples,
	}
}

// Get returns the buffer for fileID or ErrNotLoaded
func (s *SampleStore) Get(fileID string) (*SampleBuffer, error) {
	buf, ok := s.buffers[fileID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotLoaded, fileID)
	}
	return buf, nil
}

// Len returns the number of loaded files
func (s *SampleStore) Len() int {
	return len(s.buffers)
}
