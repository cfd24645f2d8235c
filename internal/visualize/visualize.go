// Package visualize renders human-reviewable comparison artifacts from
// a capture pair, its diff, and its metrics. Every mode produces a
// self-contained HTML document with all images inlined, so artifacts
// can be opened and shared independently of the engine.
package visualize

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/standardbeagle/pixelgate/internal/imagediff"
	"github.com/standardbeagle/pixelgate/internal/metrics"
)

// Mode selects one of the seven presentation styles. Each mode is a
// pure function of the same (pair, diff, report) inputs.
type Mode int

const (
	ModeSideBySide Mode = iota
	ModeOverlay
	ModeDiffMask
	ModeSlider
	ModeOnionSkin
	ModeBlink
	ModeRegions
)

var modeNames = map[Mode]string{
	ModeSideBySide: "side-by-side",
	ModeOverlay:    "overlay",
	ModeDiffMask:   "diff-mask",
	ModeSlider:     "slider",
	ModeOnionSkin:  "onion-skin",
	ModeBlink:      "blink",
	ModeRegions:    "regions",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Modes lists all seven modes in rendering order.
func Modes() []Mode {
	return []Mode{ModeSideBySide, ModeOverlay, ModeDiffMask, ModeSlider, ModeOnionSkin, ModeBlink, ModeRegions}
}

// ParseMode resolves a mode name from configuration or the CLI.
func ParseMode(name string) (Mode, error) {
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown visualization mode %q", name)
}

// Pair bundles the two images a comparison ran over.
type Pair struct {
	Reference image.Image
	Actual    image.Image
	Screen    string
	Viewport  string
}

// Artifact is a rendered, shareable comparison document.
type Artifact struct {
	Mode Mode
	HTML []byte
}

// Render produces the artifact for one mode. It holds no shared state;
// rendering the same inputs twice yields identical output.
func Render(pair Pair, diff *imagediff.Result, report *metrics.Report, mode Mode) (*Artifact, error) {
	data, err := buildTemplateData(pair, diff, report, mode)
	if err != nil {
		return nil, err
	}

	tmpl, ok := modeTemplates[mode]
	if !ok {
		return nil, fmt.Errorf("unknown visualization mode %d", int(mode))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s artifact: %w", mode, err)
	}

	return &Artifact{Mode: mode, HTML: buf.Bytes()}, nil
}

// MaskImage renders the changed pixels in red over a dimmed copy of the
// actual capture. Unchanged pixels keep their color at reduced
// brightness so the differences stand out.
func MaskImage(pair Pair, diff *imagediff.Result) image.Image {
	b := pair.Actual.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, diff.Width, diff.Height))
	for y := 0; y < diff.Height; y++ {
		for x := 0; x < diff.Width; x++ {
			if diff.Differs(x, y) {
				out.Set(x, y, color.RGBA{R: 255, A: 255})
				continue
			}
			r, g, bl, a := pair.Actual.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.Set(x, y, color.RGBA{
				R: uint8(r >> 9),
				G: uint8(g >> 9),
				B: uint8(bl >> 9),
				A: uint8(a >> 8),
			})
		}
	}
	return out
}

func dataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
