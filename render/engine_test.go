package render

import (
	"errors"
	"testing"
	"time"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(&fakePrimitive{}, EngineConfig{QueueDepth: 8})
	t.Cleanup(e.Close)
	return e
}

func testRequest(fileID string, t0, duration float64) RenderRequest {
	return RenderRequest{
		FileID:   fileID,
		T0:       t0,
		Duration: duration,
		Analysis: testAnalysis(),
		Display:  DefaultDisplayParams(),
	}
}

func TestEngineRenderAfterLoad(t *testing.T) {
	e := newTestEngine(t)
	e.LoadPCM("f", 32000, rampSamples(320000))

	rep := e.RenderSync(testRequest("f", 0, 8))
	if rep.Err != nil {
		t.Fatalf("render: %v", rep.Err)
	}
	if rep.Image.Width != 1000 || rep.Image.Height != testAnalysis().NMels {
		t.Fatalf("image %dx%d, want 1000x%d", rep.Image.Width, rep.Image.Height, testAnalysis().NMels)
	}
	if len(rep.Image.PNG) == 0 {
		t.Fatal("empty png payload")
	}
}

func TestEngineNotLoaded(t *testing.T) {
	e := newTestEngine(t)
	rep := e.RenderSync(testRequest("missing", 0, 1))
	if !errors.Is(rep.Err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", rep.Err)
	}
}

func TestEngineInvalidParams(t *testing.T) {
	e := newTestEngine(t)
	e.LoadPCM("f", 32000, rampSamples(32000))

	req := testRequest("f", 0, 1)
	req.Analysis.HopLength = 0
	rep := e.RenderSync(req)
	if !errors.Is(rep.Err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", rep.Err)
	}
}

func TestEnginePlaceholderPastEOF(t *testing.T) {
	e := newTestEngine(t)
	e.LoadPCM("f", 32000, rampSamples(32000)) // 1 s

	rep := e.RenderSync(testRequest("f", 30, 8))
	if rep.Err != nil {
		t.Fatalf("render: %v", rep.Err)
	}
	if rep.Image.Width != 1 || rep.Image.Height != 1 {
		t.Fatalf("expected 1x1 placeholder, got %dx%d", rep.Image.Width, rep.Image.Height)
	}
}

func TestEngineRepliesPreserveOrder(t *testing.T) {
	e := newTestEngine(t)
	e.LoadPCM("f", 32000, rampSamples(320000))

	// widths 125, 250, 375: distinguishable by frame count
	e.Submit(testRequest("f", 0, 1))
	e.Submit(testRequest("f", 0, 2))
	e.Submit(testRequest("f", 0, 3))

	wantWidths := []int{125, 250, 375}
	for i, want := range wantWidths {
		select {
		case rep := <-e.Replies():
			if rep.Err != nil {
				t.Fatalf("reply %d: %v", i, rep.Err)
			}
			if rep.Image.Width != want {
				t.Fatalf("reply %d width = %d, want %d (order violated)", i, rep.Image.Width, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for reply %d", i)
		}
	}
}

func TestEngineReplacesPCMWholesale(t *testing.T) {
	e := newTestEngine(t)
	e.LoadPCM("f", 32000, rampSamples(320000)) // 10 s
	e.LoadPCM("f", 32000, rampSamples(32000))  // replaced by 1 s

	rep := e.RenderSync(testRequest("f", 8, 1))
	if rep.Err != nil {
		t.Fatalf("render: %v", rep.Err)
	}
	if rep.Image.Width != 1 {
		t.Fatalf("render against replaced pcm should be past EOF, got width %d", rep.Image.Width)
	}
}

func TestEngineRejectsWorkAfterClose(t *testing.T) {
	e := NewEngine(&fakePrimitive{}, EngineConfig{})
	e.LoadPCM("f", 32000, rampSamples(320000))
	e.Close()

	if e.Submit(testRequest("f", 0, 1)) {
		t.Fatal("Submit should report rejection after Close")
	}
	rep := e.RenderSync(testRequest("f", 0, 1))
	if !errors.Is(rep.Err, ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed, got %v", rep.Err)
	}

	// ignored, must not panic or block
	e.LoadPCM("g", 32000, rampSamples(32000))
}

func TestEngineCloseClosesReplies(t *testing.T) {
	e := NewEngine(&fakePrimitive{}, EngineConfig{})
	e.Close()

	select {
	case _, ok := <-e.Replies():
		if ok {
			t.Fatal("unexpected reply on closed engine")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("replies channel not closed after Close")
	}
}
