package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"io"

	xdraw "golang.org/x/image/draw"

	"github.com/standardbeagle/pixelgate/internal/orchestrator"
	"github.com/standardbeagle/pixelgate/internal/visualize"
)

// thumbWidth is the embedded thumbnail width in pixels.
const thumbWidth = 320

type htmlJob struct {
	JobSummary
	RefThumb      template.URL
	ActThumb      template.URL
	ArtifactURI   template.URL
	HasArtifact   bool
	HasThumbnails bool
}

type htmlData struct {
	*Summary
	PassPercent string
	FailingJobs []htmlJob
}

// WriteHTML renders the shareable report document. Visual artifacts are
// embedded only for failing comparisons to bound output size; passed
// jobs appear as table rows only.
func (s *Summary) WriteHTML(w io.Writer) error {
	data := htmlData{
		Summary:     s,
		PassPercent: fmt.Sprintf("%.1f%%", s.PassRate*100),
	}

	if s.batch != nil {
		byID := make(map[string]*orchestrator.Job, len(s.batch.Jobs))
		for _, job := range s.batch.Jobs {
			byID[job.ID()] = job
		}

		for _, js := range s.Jobs {
			if js.Outcome != OutcomeFailed {
				continue
			}
			hj := htmlJob{JobSummary: js}
			if job := byID[js.ID]; job != nil && job.Result != nil && job.Result.Reference != nil {
				if err := hj.attachVisuals(job); err != nil {
					return err
				}
			}
			data.FailingJobs = append(data.FailingJobs, hj)
		}
	}

	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func (hj *htmlJob) attachVisuals(job *orchestrator.Job) error {
	ref, act := job.Result.Reference, job.Result.Actual

	refThumb, err := thumbnailURI(ref)
	if err != nil {
		return fmt.Errorf("thumbnail reference for %s: %w", job.ID(), err)
	}
	actThumb, err := thumbnailURI(act)
	if err != nil {
		return fmt.Errorf("thumbnail actual for %s: %w", job.ID(), err)
	}
	hj.RefThumb = refThumb
	hj.ActThumb = actThumb
	hj.HasThumbnails = true

	artifact, err := visualize.Render(visualize.Pair{
		Reference: ref,
		Actual:    act,
		Screen:    job.Screen,
		Viewport:  job.Viewport.Name,
	}, job.Result.Diff, job.Result.Metrics, visualize.ModeRegions)
	if err != nil {
		return fmt.Errorf("render artifact for %s: %w", job.ID(), err)
	}
	hj.ArtifactURI = template.URL("data:text/html;base64," + base64.StdEncoding.EncodeToString(artifact.HTML))
	hj.HasArtifact = true
	return nil
}

// thumbnailURI downscales img to thumbWidth and returns it as a PNG
// data URI.
func thumbnailURI(img image.Image) (template.URL, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > thumbWidth {
		h = h * thumbWidth / w
		if h < 1 {
			h = 1
		}
		w = thumbWidth
	}

	thumb := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, b, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return "", err
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

var reportTemplate = template.Must(template.New("report").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Visual validation report</title>
<style>
body { font-family: system-ui, sans-serif; margin: 0; background: #f5f5f5; color: #222; }
header { padding: 16px 24px; background: #fff; border-bottom: 1px solid #ddd; }
header h1 { margin: 0 0 8px; font-size: 20px; }
.stats { display: flex; gap: 32px; font-size: 14px; }
.stats b { font-size: 18px; display: block; }
main { padding: 24px; }
table { border-collapse: collapse; background: #fff; width: 100%; font-size: 14px; }
th, td { text-align: left; padding: 6px 12px; border-bottom: 1px solid #eee; }
.passed { color: #1a7f37; } .failed { color: #cf222e; } .errored { color: #9a6700; }
.job { background: #fff; margin-top: 24px; padding: 16px; border: 1px solid #ddd; }
.job img { border: 1px solid #ccc; }
iframe { width: 100%; height: 480px; border: 1px solid #ccc; margin-top: 8px; }
</style>
</head>
<body>
<header>
<h1>Visual validation report</h1>
<div class="stats">
<span><b>{{.Total}}</b> jobs</span>
<span class="passed"><b>{{.Passed}}</b> passed</span>
<span class="failed"><b>{{.Failed}}</b> failed</span>
<span class="errored"><b>{{.Errored}}</b> errored</span>
<span><b>{{.PassPercent}}</b> pass rate</span>
<span><b>{{printf "%.1f" .AverageQuality}}</b> avg quality (cutoff {{.Cutoff}})</span>
</div>
</header>
<main>
<table>
<tr><th>job</th><th>outcome</th><th>score</th><th>accuracy</th><th>ssim</th><th>regions</th><th>notes</th></tr>
{{range .Jobs}}<tr>
<td>{{.ID}}</td>
<td class="{{.Outcome}}">{{.Outcome}}</td>
<td>{{printf "%.1f" .QualityScore}}</td>
<td>{{printf "%.2f" .PixelAccuracy}}%</td>
<td>{{printf "%.4f" .SSIM}}</td>
<td>{{.RegionCount}}</td>
<td>{{if .Cached}}cached{{end}} {{.Error}}</td>
</tr>
{{end}}</table>

{{if .Worst}}<h2>Worst performers</h2>
<table>
<tr><th>job</th><th>score</th><th>accuracy</th></tr>
{{range .Worst}}<tr><td>{{.ID}}</td><td>{{printf "%.1f" .QualityScore}}</td><td>{{printf "%.2f" .PixelAccuracy}}%</td></tr>
{{end}}</table>{{end}}

{{range .FailingJobs}}
<div class="job">
<h2>{{.ID}} <span class="failed">({{printf "%.1f" .QualityScore}})</span></h2>
{{if .HasThumbnails}}<div style="display:flex;gap:16px">
<figure><figcaption>reference</figcaption><img src="{{.RefThumb}}" alt="reference"></figure>
<figure><figcaption>actual</figcaption><img src="{{.ActThumb}}" alt="actual"></figure>
</div>{{end}}
{{if .HasArtifact}}<iframe src="{{.ArtifactURI}}" title="{{.ID}} regions"></iframe>
{{else}}<p>Result served from cache; see the cache directory for the stored diff image.</p>{{end}}
</div>
{{end}}
</main>
</body>
</html>
`))
