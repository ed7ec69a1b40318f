// Command sonido-scope speaks a line-delimited JSON protocol on stdin/stdout
// for a host process driving an interactive spectrogram viewport. One request
// per line; every request produces exactly one reply line, in request order.
// Logging goes to stderr so stdout carries protocol traffic only.
package main

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/RyanBlaney/sonido-scope/logging"
	"github.com/RyanBlaney/sonido-scope/render"
	"github.com/RyanBlaney/sonido-scope/spectral"
)

// request is one inbound command line
type request struct {
	Action     string                 `json:"action"`
	FileID     string                 `json:"fileId"`
	SampleRate int                    `json:"sampleRate,omitempty"`
	Samples    []float32              `json:"samples,omitempty"`
	PCMBase64  string                 `json:"pcmBase64,omitempty"` // little-endian float32
	Path       string                 `json:"path,omitempty"`
	T0         float64                `json:"t0,omitempty"`
	Duration   float64                `json:"windowDuration,omitempty"`
	Analysis   *render.AnalysisParams `json:"analysis,omitempty"`
	Display    *render.DisplayParams  `json:"display,omitempty"`
}

// reply is one outbound message line
type reply struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

func newReply(kind string, data map[string]any) reply {
	return reply{
		Type:      kind,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func errorReply(err error) reply {
	return newReply("error", map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

// handleRequest routes one parsed command to the engine
func handleRequest(e *render.Engine, req request) reply {
	switch req.Action {
	case "set_pcm":
		samples := req.Samples
		if req.PCMBase64 != "" {
			decoded, err := decodePCMBase64(req.PCMBase64)
			if err != nil {
				return errorReply(err)
			}
			samples = decoded
		}
		if req.SampleRate <= 0 {
			return errorReply(fmt.Errorf("set_pcm: sampleRate must be positive, got %d", req.SampleRate))
		}
		e.LoadPCM(req.FileID, req.SampleRate, samples)
		return newReply("ack", map[string]any{
			"success": true,
			"fileId":  req.FileID,
			"samples": len(samples),
		})

	case "load_wav":
		samples, sampleRate, err := readWAVMono(req.Path)
		if err != nil {
			return errorReply(err)
		}
		e.LoadPCM(req.FileID, sampleRate, samples)
		return newReply("ack", map[string]any{
			"success":    true,
			"fileId":     req.FileID,
			"sampleRate": sampleRate,
			"samples":    len(samples),
		})

	case "render":
		analysis := render.DefaultAnalysisParams(req.SampleRate)
		if req.Analysis != nil {
			analysis = *req.Analysis
		}
		display := render.DefaultDisplayParams()
		if req.Display != nil {
			display = *req.Display
		}
		rep := e.RenderSync(render.RenderRequest{
			FileID:   req.FileID,
			T0:       req.T0,
			Duration: req.Duration,
			Analysis: analysis,
			Display:  display,
		})
		if rep.Err != nil {
			return errorReply(rep.Err)
		}
		return newReply("image", map[string]any{
			"fileId": rep.FileID,
			"png":    base64.StdEncoding.EncodeToString(rep.Image.PNG),
			"width":  rep.Image.Width,
			"height": rep.Image.Height,
		})

	default:
		return errorReply(fmt.Errorf("unknown action: %q", req.Action))
	}
}

// decodePCMBase64 unpacks little-endian float32 PCM
func decodePCMBase64(s string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("pcmBase64 decode: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("pcmBase64 length %d is not a multiple of 4", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}

func main() {
	cacheCap := flag.Int("cache", render.DefaultEngineConfig().CacheCapacity,
		"tile cache capacity in float32 values, <= 0 for unbounded")
	gridAlign := flag.Bool("grid-align", false,
		"snap tile starts to the tile grid so scrolled windows share cache entries")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		logging.SetLevel(logging.DebugLevel)
	}
	logger := logging.WithFields(logging.Fields{"component": "host"})

	cfg := render.DefaultEngineConfig()
	cfg.CacheCapacity = *cacheCap
	cfg.GridAlign = *gridAlign

	engine := render.NewEngine(spectral.NewAnalyzer(), cfg)
	defer engine.Close()

	out := bufio.NewWriter(os.Stdout)
	enc := json.NewEncoder(out)

	send := func(r reply) {
		if err := enc.Encode(r); err != nil {
			logger.Error(err, "write reply")
			return
		}
		if err := out.Flush(); err != nil {
			logger.Error(err, "flush reply")
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	// PCM payloads can be large
	scanner.Buffer(make([]byte, 1<<20), 512<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			send(errorReply(fmt.Errorf("bad request: %w", err)))
			continue
		}

		send(handleRequest(engine, req))
	}

	if err := scanner.Err(); err != nil {
		logger.Error(err, "stdin read")
		os.Exit(1)
	}
}
