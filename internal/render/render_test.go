package render

import (
	"bytes"
	"horizon/internal/trade"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	blue  = color.NRGBA{B: 255, A: 255}
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
)

// writeThemeDir creates a theme directory with a 200x200 blue background,
// a font and the given document.
func writeThemeDir(t *testing.T, doc string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, imaging.Save(imaging.New(200, 200, blue), filepath.Join(dir, "background.png")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "font.ttf"), goregular.TTF, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ThemeFile), []byte(doc), 0o600))
	return dir
}

func viewWithThumbnail(img image.Image) *trade.TradeView {
	view := &trade.TradeView{
		TradeID: 1,
		Status:  trade.StatusCompleted,
		Give:    trade.Side{User: trade.User{ID: 1, Name: "me"}},
		Take:    trade.Side{User: trade.User{ID: 2, Name: "them"}},
	}
	view.Give.Items[0] = &trade.Item{AssetID: 10, RecentAveragePrice: 100, Thumbnail: img}
	return view
}

func decode(t *testing.T, buf *bytes.Buffer) image.Image {
	t.Helper()
	img, err := imaging.Decode(buf)
	require.NoError(t, err)
	return img
}

func assertColor(t *testing.T, want color.NRGBA, got color.Color, msg string) {
	t.Helper()
	c := color.NRGBAModel.Convert(got).(color.NRGBA)
	near := func(a, b uint8) bool { return int(a)-int(b) <= 8 && int(b)-int(a) <= 8 }
	assert.True(t, near(c.R, want.R) && near(c.G, want.G) && near(c.B, want.B) && near(c.A, want.A),
		"%s: want %v, got %v", msg, want, c)
}

func TestLoadTheme_PreservesOrder(t *testing.T) {
	dir := writeThemeDir(t, `{
		"background_image": "background.png",
		"drawn_text": {
			"title": {"text": "{trade_status}", "position": [10, 10], "font_file": "font.ttf", "font_size": 12}
		},
		"take": {
			"item2": {"size": [50, 50], "position": [0, 0]},
			"item1": {"size": [50, 50], "position": [60, 0], "center_on_position": true, "transparency": true}
		},
		"watermark": {"anything": true},
		"give": {
			"item9": {"size": [10, 10], "position": [0, 0]}
		},
		"drawn_images": {
			"logo": {"file_name": "logo.png", "size": [20, 30], "position": [5, 6]}
		}
	}`)

	theme, err := LoadTheme(dir)
	require.NoError(t, err)

	assert.Equal(t, "background.png", theme.Background)
	require.Len(t, theme.Sections, 6)

	kinds := make([]SectionKind, len(theme.Sections))
	names := make([]string, len(theme.Sections))
	for i, s := range theme.Sections {
		kinds[i] = s.Kind
		names[i] = s.Name
	}
	assert.Equal(t, []SectionKind{KindText, KindItemSlot, KindItemSlot, KindUnknown, KindUnknown, KindStaticImage}, kinds)
	assert.Equal(t, []string{"drawn_text.title", "take.item2", "take.item1", "watermark", "give.item9", "drawn_images.logo"}, names)

	slot := theme.Sections[2]
	assert.Equal(t, trade.Take, slot.Side)
	assert.Equal(t, 0, slot.Slot)
	assert.True(t, slot.CenterOnPosition)
	assert.True(t, slot.Transparency)
	assert.Equal(t, image.Pt(60, 0), slot.Position)

	text := theme.Sections[0]
	assert.Equal(t, color.NRGBA{A: 255}, text.Fill)
	assert.Equal(t, 12.0, text.FontSize)

	logo := theme.Sections[5]
	assert.Equal(t, "logo.png", logo.File)
	assert.Equal(t, image.Pt(20, 30), logo.Size)
}

func TestParseTheme_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"background_image": `},
		{"no background", `{"give": {}}`},
		{"bad size", `{"background_image": "bg.png", "give": {"item1": {"size": [0, 10], "position": [0, 0]}}}`},
		{"missing file name", `{"background_image": "bg.png", "drawn_images": {"logo": {"size": [1, 1], "position": [0, 0]}}}`},
		{"bad color", `{"background_image": "bg.png", "drawn_text": {"t": {"text": "x", "position": [0, 0], "font_file": "f.ttf", "font_size": 10, "rgba": [300, 0, 0]}}}`},
		{"missing font size", `{"background_image": "bg.png", "drawn_text": {"t": {"text": "x", "position": [0, 0], "font_file": "f.ttf"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTheme("theme", []byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadTheme_MissingFile(t *testing.T) {
	_, err := LoadTheme(t.TempDir())
	assert.Error(t, err)
}

func TestBuild_Layering(t *testing.T) {
	dir := writeThemeDir(t, `{
		"background_image": "background.png",
		"give": {
			"item1": {"size": [100, 100], "position": [100, 100], "center_on_position": true, "transparency": true}
		},
		"drawn_text": {
			"mark": {"text": "I", "position": [100, 100], "rgba": [0, 255, 0, 255],
			         "font_file": "font.ttf", "font_size": 64, "center_on_position": true,
			         "stroke_rgba": [0, 255, 0, 255], "stroke_width": 3}
		}
	}`)
	theme, err := LoadTheme(dir)
	require.NoError(t, err)

	buf, err := NewCompositor(nil).Build(theme, viewWithThumbnail(imaging.New(10, 10, red)))
	require.NoError(t, err)
	img := decode(t, buf)

	assert.Equal(t, image.Rect(0, 0, 200, 200), img.Bounds())
	assertColor(t, blue, img.At(10, 10), "background outside the item")
	assertColor(t, red, img.At(60, 60), "item over background")
	assertColor(t, green, img.At(100, 100), "text over item at the anchor")
}

func TestBuild_OpaqueSlotFlattensOnWhite(t *testing.T) {
	dir := writeThemeDir(t, `{
		"background_image": "background.png",
		"give": {"item1": {"size": [50, 50], "position": [0, 0], "transparency": false}},
		"take": {"item1": {"size": [50, 50], "position": [100, 0], "transparency": true}}
	}`)
	theme, err := LoadTheme(dir)
	require.NoError(t, err)

	clear := imaging.New(10, 10, color.NRGBA{})
	view := viewWithThumbnail(clear)
	view.Take.Items[0] = &trade.Item{AssetID: 10, Thumbnail: clear}

	buf, err := NewCompositor(nil).Build(theme, view)
	require.NoError(t, err)
	img := decode(t, buf)

	assertColor(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, img.At(25, 25), "opaque slot")
	assertColor(t, blue, img.At(125, 25), "transparent slot lets background through")
}

func TestBuild_SkipsEmptySlotsBadTextAndUnknownSections(t *testing.T) {
	dir := writeThemeDir(t, `{
		"background_image": "background.png",
		"take": {"item3": {"size": [50, 50], "position": [0, 0]}},
		"give": {"item2": {"size": [50, 50], "position": [0, 0]}},
		"sparkles": {"size": [1, 1]},
		"drawn_text": {
			"bad": {"text": "{nope}", "position": [0, 0], "font_file": "font.ttf", "font_size": 20}
		}
	}`)
	theme, err := LoadTheme(dir)
	require.NoError(t, err)

	view := viewWithThumbnail(imaging.New(10, 10, red))
	view.Give.Items[1] = &trade.Item{AssetID: 11}

	buf, err := NewCompositor(nil).Build(theme, view)
	require.NoError(t, err)
	img := decode(t, buf)

	assertColor(t, blue, img.At(10, 10), "nothing drawn")
}

func TestBuild_Failures(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing background", `{"background_image": "nope.png"}`},
		{"missing static image", `{"background_image": "background.png",
			"drawn_images": {"logo": {"file_name": "logo.png", "size": [1, 1], "position": [0, 0]}}}`},
		{"missing font", `{"background_image": "background.png",
			"drawn_text": {"t": {"text": "hi", "position": [0, 0], "font_file": "missing.ttf", "font_size": 10}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			theme, err := LoadTheme(writeThemeDir(t, tt.doc))
			require.NoError(t, err)

			_, err = NewCompositor(nil).Build(theme, viewWithThumbnail(nil))
			assert.Error(t, err)
		})
	}
}

func TestAnchor(t *testing.T) {
	assert.Equal(t, image.Pt(10, 20), anchor(image.Pt(10, 20), image.Pt(100, 50), false))
	assert.Equal(t, image.Pt(50, 75), anchor(image.Pt(100, 100), image.Pt(100, 50), true))
	assert.Equal(t, image.Pt(49, 49), anchor(image.Pt(100, 100), image.Pt(101, 101), true))
}
