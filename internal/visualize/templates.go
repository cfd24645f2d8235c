package visualize

import (
	"fmt"
	"html/template"

	"github.com/standardbeagle/pixelgate/internal/imagediff"
	"github.com/standardbeagle/pixelgate/internal/metrics"
)

type regionView struct {
	Index      int
	X, Y, W, H int
	PixelCount int
	Severity   string
}

type templateData struct {
	Screen   string
	Viewport string
	ModeName string
	Width    int
	Height   int

	// template.URL keeps html/template from rejecting the data: scheme.
	RefURI  template.URL
	ActURI  template.URL
	MaskURI template.URL

	Accuracy     string
	SSIM         string
	PSNR         string
	QualityScore string
	Confidence   string

	RegionCount int
	Regions     []regionView
}

func buildTemplateData(pair Pair, diff *imagediff.Result, report *metrics.Report, mode Mode) (*templateData, error) {
	refURI, err := dataURI(pair.Reference)
	if err != nil {
		return nil, fmt.Errorf("encode reference: %w", err)
	}
	actURI, err := dataURI(pair.Actual)
	if err != nil {
		return nil, fmt.Errorf("encode actual: %w", err)
	}

	data := &templateData{
		Screen:       pair.Screen,
		Viewport:     pair.Viewport,
		ModeName:     mode.String(),
		Width:        diff.Width,
		Height:       diff.Height,
		RefURI:       template.URL(refURI),
		ActURI:       template.URL(actURI),
		Accuracy:     fmt.Sprintf("%.2f%%", report.PixelAccuracy),
		SSIM:         fmt.Sprintf("%.4f", report.SSIM),
		PSNR:         report.PSNR.String(),
		QualityScore: fmt.Sprintf("%.1f", report.QualityScore),
		Confidence:   fmt.Sprintf("%.2f", report.Confidence),
		RegionCount:  len(diff.Regions),
	}

	if mode == ModeDiffMask {
		maskURI, err := dataURI(MaskImage(pair, diff))
		if err != nil {
			return nil, fmt.Errorf("encode mask: %w", err)
		}
		data.MaskURI = template.URL(maskURI)
	}

	if mode == ModeRegions {
		for i, r := range diff.Regions {
			data.Regions = append(data.Regions, regionView{
				Index:      i + 1,
				X:          r.Bounds.Min.X,
				Y:          r.Bounds.Min.Y,
				W:          r.Bounds.Dx(),
				H:          r.Bounds.Dy(),
				PixelCount: r.PixelCount,
				Severity:   r.Severity.String(),
			})
		}
	}

	return data, nil
}

const docHead = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Screen}} @ {{.Viewport}} — {{.ModeName}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 0; background: #1e1e1e; color: #ddd; }
header { padding: 12px 16px; background: #2a2a2a; display: flex; gap: 24px; align-items: baseline; }
header h1 { font-size: 16px; margin: 0; }
header .metric { font-size: 13px; color: #aaa; }
header .metric b { color: #fff; }
main { padding: 16px; }
img { image-rendering: pixelated; max-width: 100%; }
</style>
</head>
<body>
<header>
<h1>{{.Screen}} <span style="color:#888">@ {{.Viewport}}</span></h1>
<span class="metric">accuracy <b>{{.Accuracy}}</b></span>
<span class="metric">ssim <b>{{.SSIM}}</b></span>
<span class="metric">psnr <b>{{.PSNR}}</b></span>
<span class="metric">score <b>{{.QualityScore}}</b></span>
<span class="metric">regions <b>{{.RegionCount}}</b></span>
</header>
<main>
`

const docFoot = `</main>
</body>
</html>
`

// The seven mode bodies. Scroll synchronization, opacity sliders, and
// the blink timer are inline so the document works offline.
var modeBodies = map[Mode]string{
	ModeSideBySide: `<div style="display:flex;gap:8px">
<div style="flex:1;overflow:auto;max-height:90vh" class="pane"><p>Reference</p><img src="{{.RefURI}}" alt="reference"></div>
<div style="flex:1;overflow:auto;max-height:90vh" class="pane"><p>Actual</p><img src="{{.ActURI}}" alt="actual"></div>
</div>
<script>
const panes = document.querySelectorAll('.pane');
panes.forEach(p => p.addEventListener('scroll', () => {
  panes.forEach(q => { if (q !== p) { q.scrollTop = p.scrollTop; q.scrollLeft = p.scrollLeft; } });
}));
</script>`,

	ModeOverlay: `<label>actual opacity <input id="op" type="range" min="0" max="100" value="50"></label>
<div style="position:relative;width:{{.Width}}px">
<img src="{{.RefURI}}" alt="reference">
<img id="top" src="{{.ActURI}}" alt="actual" style="position:absolute;left:0;top:0;opacity:0.5">
</div>
<script>
document.getElementById('op').addEventListener('input', e => {
  document.getElementById('top').style.opacity = e.target.value / 100;
});
</script>`,

	ModeDiffMask: `<p>Changed pixels in red; unchanged content dimmed.</p>
<img src="{{.MaskURI}}" alt="diff mask">`,

	ModeSlider: `<div id="wrap" style="position:relative;width:{{.Width}}px;cursor:ew-resize">
<img src="{{.RefURI}}" alt="reference">
<div id="reveal" style="position:absolute;left:0;top:0;width:50%;height:100%;overflow:hidden">
<img src="{{.ActURI}}" alt="actual" style="max-width:none;width:{{.Width}}px">
</div>
<div id="bar" style="position:absolute;top:0;left:50%;width:2px;height:100%;background:#f60"></div>
</div>
<script>
const wrap = document.getElementById('wrap');
wrap.addEventListener('mousemove', e => {
  const pct = 100 * (e.clientX - wrap.getBoundingClientRect().left) / wrap.offsetWidth;
  document.getElementById('reveal').style.width = pct + '%';
  document.getElementById('bar').style.left = pct + '%';
});
</script>`,

	ModeOnionSkin: `<p>Tuned for subtle differences: fine-grained opacity steps around the midpoint.</p>
<label>blend <input id="op" type="range" min="350" max="650" value="500"></label>
<div style="position:relative;width:{{.Width}}px">
<img src="{{.RefURI}}" alt="reference">
<img id="top" src="{{.ActURI}}" alt="actual" style="position:absolute;left:0;top:0;opacity:0.5">
</div>
<script>
document.getElementById('op').addEventListener('input', e => {
  document.getElementById('top').style.opacity = e.target.value / 1000;
});
</script>`,

	ModeBlink: `<div style="position:relative;width:{{.Width}}px">
<img src="{{.RefURI}}" alt="reference">
<img id="top" src="{{.ActURI}}" alt="actual" style="position:absolute;left:0;top:0">
</div>
<script>
let shown = true;
setInterval(() => {
  shown = !shown;
  document.getElementById('top').style.visibility = shown ? 'visible' : 'hidden';
}, 700);
</script>`,

	ModeRegions: `<div style="position:relative;width:{{.Width}}px">
<img src="{{.ActURI}}" alt="actual">
{{range .Regions}}<div title="region {{.Index}}: {{.PixelCount}}px, {{.Severity}}"
  style="position:absolute;left:{{.X}}px;top:{{.Y}}px;width:{{.W}}px;height:{{.H}}px;border:2px solid #f60">
<span style="position:absolute;top:-18px;left:0;font-size:11px;background:#f60;color:#000;padding:0 4px">#{{.Index}} {{.Severity}} ({{.PixelCount}}px)</span>
</div>
{{end}}</div>
<table style="margin-top:16px;font-size:13px;border-collapse:collapse">
<tr><th style="text-align:left;padding:2px 12px 2px 0">#</th><th style="text-align:left;padding:2px 12px 2px 0">bounds</th><th style="text-align:left;padding:2px 12px 2px 0">pixels</th><th style="text-align:left;padding:2px 12px 2px 0">severity</th></tr>
{{range .Regions}}<tr><td style="padding:2px 12px 2px 0">{{.Index}}</td><td style="padding:2px 12px 2px 0">({{.X}},{{.Y}}) {{.W}}×{{.H}}</td><td style="padding:2px 12px 2px 0">{{.PixelCount}}</td><td style="padding:2px 12px 2px 0">{{.Severity}}</td></tr>
{{end}}</table>`,
}

var modeTemplates = func() map[Mode]*template.Template {
	out := make(map[Mode]*template.Template, len(modeBodies))
	for mode, body := range modeBodies {
		out[mode] = template.Must(template.New(mode.String()).Parse(docHead + body + docFoot))
	}
	return out
}()
