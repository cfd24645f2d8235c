package capture

import "fmt"

// Viewport is a named width/height/scale configuration simulating a
// device class. Values are fixed at construction.
type Viewport struct {
	Name   string  `json:"name"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`
}

// Predefined device-class viewports.
var (
	Mobile  = Viewport{Name: "mobile", Width: 375, Height: 667, Scale: 2}
	Tablet  = Viewport{Name: "tablet", Width: 768, Height: 1024, Scale: 2}
	Desktop = Viewport{Name: "desktop", Width: 1920, Height: 1080, Scale: 1}
)

// Presets returns the standard mobile/tablet/desktop viewports.
func Presets() []Viewport {
	return []Viewport{Mobile, Tablet, Desktop}
}

// Custom builds a viewport with arbitrary dimensions. A non-positive
// scale defaults to 1.
func Custom(name string, width, height int, scale float64) Viewport {
	if scale <= 0 {
		scale = 1
	}
	return Viewport{Name: name, Width: width, Height: height, Scale: scale}
}

// Key returns a stable identifier used in cache keys and filenames.
func (v Viewport) Key() string {
	return fmt.Sprintf("%s_%dx%d@%g", v.Name, v.Width, v.Height, v.Scale)
}

func (v Viewport) String() string {
	return v.Key()
}

// Valid reports whether the viewport has usable dimensions.
func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0 && v.Scale > 0
}
