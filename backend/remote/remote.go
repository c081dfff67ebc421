// Package remote delegates detection to an HTTP inference node that speaks
// the load/detect/unload JSON protocol.
package remote

import (
	iface "ViewfinderOverlay/interface"
	"ViewfinderOverlay/logger"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrRemote = errors.New("remote detector")

type LoadRequest struct {
	ModelPath            string   `json:"modelPath"`
	Names                []string `json:"names"`
	Confidence           float32  `json:"confidence"`
	UseGPU               bool     `json:"useGpu"`
	EnableClassification bool     `json:"enableClassification"`
	MultipleObjects      bool     `json:"multipleObjects"`
}

type LoadResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

type DetectRequest struct {
	ID       string `json:"id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
	Data     []byte `json:"data"`
}

type Object struct {
	X      float64       `json:"x"`
	Y      float64       `json:"y"`
	Width  float64       `json:"width"`
	Height float64       `json:"height"`
	Labels []iface.Label `json:"labels"`
	Track  int64         `json:"trackingID,omitempty"`
}

type DetectResponse struct {
	Success bool     `json:"success"`
	Objects []Object `json:"objects"`
	Message string   `json:"message"`
}

type UnloadRequest struct {
	ID string `json:"id"`
}

type Backend struct {
	client *resty.Client

	mu  sync.RWMutex
	id  string
	cfg iface.EngineConfig
}

func New(baseURL string, timeout time.Duration) *Backend {
	return &Backend{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (b *Backend) LoadModel(cfg iface.EngineConfig) error {
	names, _ := cfg.Names.Data.([]string)
	var out LoadResponse
	resp, err := b.client.R().
		SetBody(LoadRequest{
			ModelPath:            cfg.ModelPath,
			Names:                names,
			Confidence:           cfg.ConfidenceThreshold,
			UseGPU:               cfg.UseGPU,
			EnableClassification: cfg.EnableClassification,
			MultipleObjects:      cfg.EnableMultipleObjects,
		}).
		SetResult(&out).
		Post("/api/models/load")
	if err := check(resp, err, out.Success, out.Message); err != nil {
		return err
	}
	b.mu.Lock()
	b.id = out.ID
	b.cfg = cfg
	b.mu.Unlock()
	logger.Log().Info("remote model loaded", zap.String("id", out.ID), zap.String("url", b.client.BaseURL))
	return nil
}

func (b *Backend) Detect(ctx context.Context, frame iface.Frame) ([]iface.RawDetection, error) {
	b.mu.RLock()
	id := b.id
	b.mu.RUnlock()
	if id == "" {
		return nil, fmt.Errorf("%w: model not loaded", ErrRemote)
	}
	var out DetectResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(DetectRequest{ID: id, Width: frame.Width, Height: frame.Height, Channels: frame.Channels, Data: frame.Data}).
		SetResult(&out).
		Post("/api/detect")
	if err := check(resp, err, out.Success, out.Message); err != nil {
		return nil, err
	}
	dets := make([]iface.RawDetection, 0, len(out.Objects))
	for _, o := range out.Objects {
		dets = append(dets, iface.RawDetection{
			Rect:       iface.Rect{X: o.X, Y: o.Y, Width: o.Width, Height: o.Height},
			Labels:     o.Labels,
			TrackingID: o.Track,
		})
	}
	return dets, nil
}

func (b *Backend) Destroy() {
	b.mu.Lock()
	id := b.id
	b.id = ""
	b.cfg = iface.EngineConfig{}
	b.mu.Unlock()
	if id == "" {
		return
	}
	resp, err := b.client.R().SetBody(UnloadRequest{ID: id}).Post("/api/models/unload")
	if err != nil {
		logger.Log().Warn("remote unload failed", zap.Error(err))
	} else if resp.IsError() {
		logger.Log().Warn("remote unload rejected", zap.String("status", resp.Status()))
	}
}

func (b *Backend) CheckConfig() iface.EngineConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

func check(resp *resty.Response, err error, success bool, message string) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s: %s", ErrRemote, resp.Status(), resp.String())
	}
	if !success {
		return fmt.Errorf("%w: %s", ErrRemote, message)
	}
	return nil
}
