package render

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
)

type fontKey struct {
	path string
	size float64
}

// fontCache holds faces for the duration of one build. Faces are not safe
// for concurrent use, so caches are never shared between builds.
type fontCache struct {
	faces map[fontKey]font.Face
}

func newFontCache() *fontCache {
	return &fontCache{faces: make(map[fontKey]font.Face)}
}

func (fc *fontCache) load(path string, size float64) (font.Face, error) {
	key := fontKey{path: path, size: size}
	if face, ok := fc.faces[key]; ok {
		return face, nil
	}
	face, err := gg.LoadFontFace(path, size)
	if err != nil {
		return nil, fmt.Errorf("load font %s: %w", path, err)
	}
	fc.faces[key] = face
	return face, nil
}

// drawText renders text on a transparent layer the size of the canvas and
// composites it over the canvas. Uncentered text hangs from its ascender
// line at Position; centered text is centered on Position both ways.
func drawText(canvas *image.NRGBA, face font.Face, text string, sec Section) *image.NRGBA {
	b := canvas.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.SetFontFace(face)

	m := face.Metrics()
	ascent := float64(m.Ascent) / 64
	descent := float64(m.Descent) / 64
	lineHeight := float64(m.Height) / 64

	lines := strings.Split(text, "\n")
	blockHeight := ascent + descent + lineHeight*float64(len(lines)-1)

	top := float64(sec.Position.Y)
	if sec.CenterOnPosition {
		top -= blockHeight / 2
	}

	sw := sec.StrokeWidth
	for i, line := range lines {
		baseline := top + ascent + lineHeight*float64(i)
		x := float64(sec.Position.X)
		if sec.CenterOnPosition {
			w, _ := dc.MeasureString(line)
			x -= w / 2
		}

		if sw > 0 {
			dc.SetColor(sec.Stroke)
			for dx := -sw; dx <= sw; dx++ {
				for dy := -sw; dy <= sw; dy++ {
					if dx*dx+dy*dy > sw*sw || (dx == 0 && dy == 0) {
						continue
					}
					dc.DrawString(line, x+float64(dx), baseline+float64(dy))
				}
			}
		}

		dc.SetColor(sec.Fill)
		dc.DrawString(line, x, baseline)
	}

	return imaging.Overlay(canvas, dc.Image(), b.Min, 1.0)
}
