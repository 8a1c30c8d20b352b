package player

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/glizzus/soundlink/internal/engine"
)

// Filters reports the audio filter configuration of a player.
type Filters interface {
	// Encode returns a JSON-serializable report.
	Encode() any
	// Speed is the timescale factor applied to reported positions.
	Speed() float64
}

// FilterChain stores the filter configuration last sent by the controller.
// Only the timescale speed is interpreted; the rest is echoed back as is.
type FilterChain struct {
	mu    sync.RWMutex
	raw   json.RawMessage
	speed float64
}

func NewFilterChain() *FilterChain {
	return &FilterChain{speed: 1}
}

type filterConfig struct {
	Timescale *struct {
		Speed *float64 `json:"speed"`
	} `json:"timescale"`
}

// Update replaces the configuration with raw, a JSON object.
func (f *FilterChain) Update(raw json.RawMessage) error {
	var cfg filterConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("invalid filters: %w", err)
	}

	speed := 1.0
	if cfg.Timescale != nil && cfg.Timescale.Speed != nil {
		speed = *cfg.Timescale.Speed
		if speed <= 0 {
			return fmt.Errorf("invalid filters: timescale speed must be positive, got %v", speed)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = append(json.RawMessage(nil), raw...)
	f.speed = speed
	return nil
}

func (f *FilterChain) Encode() any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.raw == nil {
		return map[string]any{}
	}
	return f.raw
}

func (f *FilterChain) Speed() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.speed
}

var _ Filters = (*FilterChain)(nil)

// Services are per-track hooks notified of track boundaries.
type Services interface {
	Encode() any
	HandleTrackStart(track engine.Track)
	HandleTrackEnd(track engine.Track, reason engine.TrackEndReason)
}

// NopServices is the default Services.
type NopServices struct{}

func (NopServices) Encode() any                                        { return map[string]any{} }
func (NopServices) HandleTrackStart(engine.Track)                      {}
func (NopServices) HandleTrackEnd(engine.Track, engine.TrackEndReason) {}

var _ Services = NopServices{}
