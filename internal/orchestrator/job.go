package orchestrator

import (
	"encoding/json"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/standardbeagle/pixelgate/internal/capture"
	"github.com/standardbeagle/pixelgate/internal/imagediff"
	"github.com/standardbeagle/pixelgate/internal/metrics"
)

// Status is a job's position in its lifecycle. Transitions only move
// forward (Pending → Capturing → Comparing → Complete/Failed) and the
// terminal states are final.
type Status int32

const (
	StatusPending Status = iota
	StatusCapturing
	StatusComparing
	StatusComplete
	StatusFailed
)

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusCapturing: "capturing",
	StatusComparing: "comparing",
	StatusComplete:  "complete",
	StatusFailed:    "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// MarshalJSON encodes the status as its lowercase name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Job is one (screen, viewport) validation unit.
type Job struct {
	Screen        string           `json:"screen"`
	URL           string           `json:"url"`
	Viewport      capture.Viewport `json:"viewport"`
	ReferencePath string           `json:"reference_path"`

	status atomic.Int32

	// Result and Err are written by the worker that owns the job and
	// read only after the batch finishes.
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
}

// ID identifies the job within a batch.
func (j *Job) ID() string {
	return j.Screen + "/" + j.Viewport.Key()
}

// Status returns the job's current lifecycle position.
func (j *Job) Status() Status {
	return Status(j.status.Load())
}

// advance moves the job from one status to the next. It refuses
// backward moves and transitions out of a terminal state.
func (j *Job) advance(from, to Status) bool {
	if to <= from || Status(j.status.Load()).Terminal() {
		return false
	}
	return j.status.CompareAndSwap(int32(from), int32(to))
}

// Result carries everything a completed job produced. Cached results
// omit the in-memory images; their diff visualization lives in the
// cache directory instead.
type Result struct {
	Diff     *imagediff.Result `json:"diff"`
	Metrics  *metrics.Report   `json:"metrics"`
	CacheKey string            `json:"cache_key"`
	Cached   bool              `json:"cached"`

	// Reference and Actual are retained in memory for artifact
	// rendering; they are never serialized.
	Reference image.Image `json:"-"`
	Actual    image.Image `json:"-"`
}
