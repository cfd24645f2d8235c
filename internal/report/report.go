// Package report aggregates a batch run into summary statistics, a
// machine-readable JSON document, and a shareable HTML document that
// embeds visual artifacts for the comparisons that need review.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/standardbeagle/pixelgate/internal/orchestrator"
)

// Outcome classifies a job in the final report. Failed means the
// comparison ran but scored below the cutoff; Errored means it could
// not be computed at all.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeErrored Outcome = "errored"
)

// JobSummary is one job's line in the report.
type JobSummary struct {
	ID       string  `json:"id"`
	Screen   string  `json:"screen"`
	Viewport string  `json:"viewport"`
	Outcome  Outcome `json:"outcome"`

	QualityScore  float64 `json:"quality_score"`
	PixelAccuracy float64 `json:"pixel_accuracy"`
	SSIM          float64 `json:"ssim"`
	RegionCount   int     `json:"region_count"`
	Cached        bool    `json:"cached"`

	Error string `json:"error,omitempty"`
}

// Summary aggregates one batch.
type Summary struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Duration    time.Duration `json:"duration"`
	Cutoff      float64       `json:"cutoff"`

	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`

	// PassRate is the fraction of all jobs meeting the cutoff, in [0,1].
	PassRate float64 `json:"pass_rate"`
	// AverageQuality averages the quality score over computed jobs.
	AverageQuality float64 `json:"average_quality"`

	Jobs []JobSummary `json:"jobs"`
	// Worst ranks the lowest-scoring computed jobs, worst first.
	Worst []JobSummary `json:"worst"`

	batch *orchestrator.BatchReport
}

// WorstLimit caps the ranked worst-performing list.
const WorstLimit = 5

// Generate derives the summary. The pass/fail/errored triage always
// distinguishes "scored below cutoff" from "could not be computed".
func Generate(batch *orchestrator.BatchReport) *Summary {
	s := &Summary{
		GeneratedAt: time.Now(),
		Duration:    batch.Duration,
		Cutoff:      batch.PassCutoff,
		Total:       len(batch.Jobs),
		batch:       batch,
	}

	var qualitySum float64
	computed := 0

	for _, job := range batch.Jobs {
		js := JobSummary{
			ID:       job.ID(),
			Screen:   job.Screen,
			Viewport: job.Viewport.Name,
		}

		switch {
		case job.Status() == orchestrator.StatusComplete && job.Result != nil:
			m := job.Result.Metrics
			js.QualityScore = m.QualityScore
			js.PixelAccuracy = m.PixelAccuracy
			js.SSIM = m.SSIM
			js.RegionCount = m.RegionCount
			js.Cached = job.Result.Cached

			qualitySum += m.QualityScore
			computed++

			if m.QualityScore >= batch.PassCutoff {
				js.Outcome = OutcomePassed
				s.Passed++
			} else {
				js.Outcome = OutcomeFailed
				s.Failed++
			}
		default:
			js.Outcome = OutcomeErrored
			s.Errored++
			if job.Err != nil {
				js.Error = job.Err.Error()
			} else {
				js.Error = "job did not reach a terminal result"
			}
		}

		s.Jobs = append(s.Jobs, js)
	}

	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total)
	}
	if computed > 0 {
		s.AverageQuality = qualitySum / float64(computed)
	}

	for _, js := range s.Jobs {
		if js.Outcome == OutcomeErrored {
			continue
		}
		s.Worst = append(s.Worst, js)
	}
	sort.Slice(s.Worst, func(i, j int) bool {
		if s.Worst[i].QualityScore != s.Worst[j].QualityScore {
			return s.Worst[i].QualityScore < s.Worst[j].QualityScore
		}
		return s.Worst[i].ID < s.Worst[j].ID
	})
	if len(s.Worst) > WorstLimit {
		s.Worst = s.Worst[:WorstLimit]
	}

	return s
}

// WriteJSON emits the machine-readable summary for CI gating.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}
