package main

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/RyanBlaney/sonido-scope/logging"
	"github.com/RyanBlaney/sonido-scope/render"
	"github.com/RyanBlaney/sonido-scope/spectral"
)

func TestMain(m *testing.M) {
	logging.SetGlobalLogger(&logging.NoOpLogger{})
	os.Exit(m.Run())
}

func newTestHost(t *testing.T) *render.Engine {
	t.Helper()
	e := render.NewEngine(spectral.NewAnalyzer(), render.DefaultEngineConfig())
	t.Cleanup(e.Close)
	return e
}

func sineSamples(freq float64, sampleRate, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate)))
	}
	return s
}

func decodeImageReply(t *testing.T, rep reply) (w, h int) {
	t.Helper()
	if rep.Type != "image" {
		t.Fatalf("reply type %q, want image (data: %v)", rep.Type, rep.Data)
	}
	raw, err := base64.StdEncoding.DecodeString(rep.Data["png"].(string))
	if err != nil {
		t.Fatalf("png base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestSetPCMThenRender(t *testing.T) {
	e := newTestHost(t)

	rep := handleRequest(e, request{
		Action:     "set_pcm",
		FileID:     "clip",
		SampleRate: 32000,
		Samples:    sineSamples(1000, 32000, 64000),
	})
	if rep.Type != "ack" {
		t.Fatalf("set_pcm reply type %q, want ack", rep.Type)
	}

	analysis := render.DefaultAnalysisParams(32000)
	rep = handleRequest(e, request{
		Action:   "render",
		FileID:   "clip",
		T0:       0,
		Duration: 1,
		Analysis: &analysis,
	})
	w, h := decodeImageReply(t, rep)
	if w != 125 || h != analysis.NMels {
		t.Fatalf("image %dx%d, want 125x%d", w, h, analysis.NMels)
	}
}

func TestSetPCMBase64(t *testing.T) {
	e := newTestHost(t)

	samples := sineSamples(500, 32000, 32000)
	raw := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}

	rep := handleRequest(e, request{
		Action:     "set_pcm",
		FileID:     "clip",
		SampleRate: 32000,
		PCMBase64:  base64.StdEncoding.EncodeToString(raw),
	})
	if rep.Type != "ack" {
		t.Fatalf("reply type %q, want ack", rep.Type)
	}
	if got := rep.Data["samples"].(int); got != len(samples) {
		t.Fatalf("decoded %d samples, want %d", got, len(samples))
	}
}

func TestRenderBeforeLoadIsError(t *testing.T) {
	e := newTestHost(t)
	analysis := render.DefaultAnalysisParams(32000)
	rep := handleRequest(e, request{
		Action:   "render",
		FileID:   "nope",
		Duration: 1,
		Analysis: &analysis,
	})
	if rep.Type != "error" {
		t.Fatalf("reply type %q, want error", rep.Type)
	}
}

func TestUnknownAction(t *testing.T) {
	e := newTestHost(t)
	rep := handleRequest(e, request{Action: "explode"})
	if rep.Type != "error" {
		t.Fatalf("reply type %q, want error", rep.Type)
	}
}

func TestLoadWAVThenRender(t *testing.T) {
	e := newTestHost(t)

	path := filepath.Join(t.TempDir(), "tone.wav")
	writeTestWAV(t, path, sineSamples(800, 32000, 64000), 32000)

	rep := handleRequest(e, request{Action: "load_wav", FileID: "clip", Path: path})
	if rep.Type != "ack" {
		t.Fatalf("load_wav reply type %q, want ack (data: %v)", rep.Type, rep.Data)
	}
	if sr := rep.Data["sampleRate"].(int); sr != 32000 {
		t.Fatalf("sample rate %d, want 32000", sr)
	}

	analysis := render.DefaultAnalysisParams(32000)
	rep = handleRequest(e, request{
		Action:   "render",
		FileID:   "clip",
		Duration: 1,
		Analysis: &analysis,
	})
	w, _ := decodeImageReply(t, rep)
	if w != 125 {
		t.Fatalf("width %d, want 125", w)
	}
}

func TestLoadWAVMissingFile(t *testing.T) {
	e := newTestHost(t)
	rep := handleRequest(e, request{Action: "load_wav", FileID: "clip", Path: "/no/such/file.wav"})
	if rep.Type != "error" {
		t.Fatalf("reply type %q, want error", rep.Type)
	}
}

func writeTestWAV(t *testing.T, path string, samples []float32, sampleRate int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s * 32767)
	}
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
}
