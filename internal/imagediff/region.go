package imagediff

import (
	"encoding/json"
	"fmt"
	"image"
	"sort"
)

// Severity ranks a region by its pixel count.
type Severity int

const (
	SeverityMinor Severity = iota
	SeverityModerate
	SeverityMajor
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityMinor:    "minor",
	SeverityModerate: "moderate",
	SeverityMajor:    "major",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalJSON encodes the severity as its lowercase name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a lowercase severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for sev, n := range severityNames {
		if n == name {
			*s = sev
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", name)
}

// Region is one connected cluster of differing pixels.
type Region struct {
	Bounds     image.Rectangle `json:"bounds"`
	PixelCount int             `json:"pixel_count"`
	Severity   Severity        `json:"severity"`
}

// classify maps a pixel count to a severity tier.
func (c Config) classify(pixelCount int) Severity {
	switch {
	case pixelCount < c.MinorLimit:
		return SeverityMinor
	case pixelCount < c.ModerateLimit:
		return SeverityModerate
	case pixelCount < c.MajorLimit:
		return SeverityMajor
	default:
		return SeverityCritical
	}
}

// clusterRegions groups the differing pixels of res into connected
// components. Two differing pixels belong to the same region when their
// chebyshev distance is at most cfg.MergeDistance. Every differing pixel
// lands in exactly one region.
func clusterRegions(res *Result, cfg Config) []Region {
	if res.DiffPixels == 0 {
		return []Region{}
	}

	w, h, d := res.Width, res.Height, cfg.MergeDistance
	visited := make([]bool, w*h)
	var regions []Region
	queue := make([]int, 0, 256)

	for start := 0; start < w*h; start++ {
		if visited[start] || !res.Differs(start%w, start/w) {
			continue
		}

		// Flood fill from this pixel across the merge neighborhood.
		visited[start] = true
		queue = append(queue[:0], start)
		bounds := image.Rect(start%w, start/w, start%w+1, start/w+1)
		count := 0

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			px, py := idx%w, idx/w
			count++
			bounds = bounds.Union(image.Rect(px, py, px+1, py+1))

			for dy := -d; dy <= d; dy++ {
				for dx := -d; dx <= d; dx++ {
					nx, ny := px+dx, py+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if !visited[nidx] && res.Differs(nx, ny) {
						visited[nidx] = true
						queue = append(queue, nidx)
					}
				}
			}
		}

		regions = append(regions, Region{
			Bounds:     bounds,
			PixelCount: count,
			Severity:   cfg.classify(count),
		})
	}

	// Highest severity first; equal severities ordered by descending
	// area, then by position for a deterministic listing.
	sort.Slice(regions, func(i, j int) bool {
		if regions[i].Severity != regions[j].Severity {
			return regions[i].Severity > regions[j].Severity
		}
		if regions[i].PixelCount != regions[j].PixelCount {
			return regions[i].PixelCount > regions[j].PixelCount
		}
		if regions[i].Bounds.Min.Y != regions[j].Bounds.Min.Y {
			return regions[i].Bounds.Min.Y < regions[j].Bounds.Min.Y
		}
		return regions[i].Bounds.Min.X < regions[j].Bounds.Min.X
	})

	return regions
}
