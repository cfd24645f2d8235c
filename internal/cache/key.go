package cache

import (
	"encoding/json"

	"github.com/standardbeagle/pixelgate/internal/capture"
)

// keyInput is everything a validation result depends on. Hashing its
// canonical JSON gives the content-addressed key: two computations with
// equal inputs share a key, and any input change produces a new one.
type keyInput struct {
	Screen        string          `json:"screen"`
	Viewport      string          `json:"viewport"`
	ReferenceHash string          `json:"reference_hash"`
	Config        json.RawMessage `json:"config"`
}

// BuildKey derives the cache key for one (screen, viewport, reference,
// config) tuple. cfg must be a JSON-serializable view of every config
// field that affects comparison semantics.
func BuildKey(screen string, vp capture.Viewport, referenceHash string, cfg any) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(keyInput{
		Screen:        screen,
		Viewport:      vp.Key(),
		ReferenceHash: referenceHash,
		Config:        cfgJSON,
	})
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}
