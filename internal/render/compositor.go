package render

import (
	"bytes"
	"fmt"
	"horizon/internal/trade"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// Compositor renders trade views onto themes.
type Compositor struct {
	logger *zap.Logger
}

func NewCompositor(logger *zap.Logger) *Compositor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compositor{logger: logger}
}

// Build draws every theme section over the background, in order, and
// returns the PNG encoding. A missing file or unreadable font fails the
// whole build; an unrenderable text line or unknown section is skipped.
func (c *Compositor) Build(theme *Theme, view *trade.TradeView) (*bytes.Buffer, error) {
	bg, err := imaging.Open(theme.Path(theme.Background))
	if err != nil {
		return nil, fmt.Errorf("open background: %w", err)
	}
	canvas := imaging.Clone(bg)
	fonts := newFontCache()

	for _, sec := range theme.Sections {
		switch sec.Kind {
		case KindItemSlot:
			item := view.Side(sec.Side).Items[sec.Slot]
			if item == nil {
				continue
			}
			if item.Thumbnail == nil {
				c.logger.Debug("item has no thumbnail, skipping slot",
					zap.String("section", sec.Name),
					zap.Int64("assetId", item.AssetID),
				)
				continue
			}
			canvas = place(canvas, item.Thumbnail, sec)

		case KindStaticImage:
			img, err := imaging.Open(theme.Path(sec.File))
			if err != nil {
				return nil, fmt.Errorf("section %s: open image: %w", sec.Name, err)
			}
			canvas = place(canvas, img, sec)

		case KindText:
			text, err := trade.Format(sec.Text, view)
			if err != nil {
				c.logger.Warn("failed to render theme text, skipping",
					zap.String("section", sec.Name),
					zap.Error(err),
				)
				continue
			}
			face, err := fonts.load(theme.Path(sec.FontFile), sec.FontSize)
			if err != nil {
				return nil, fmt.Errorf("section %s: %w", sec.Name, err)
			}
			canvas = drawText(canvas, face, text, sec)

		default:
			c.logger.Warn("unknown theme section, skipping", zap.String("section", sec.Name))
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return &buf, nil
}

// place resizes img to the section size and draws it at the section
// position. Opaque sections flatten img onto white first.
func place(canvas *image.NRGBA, img image.Image, sec Section) *image.NRGBA {
	resized := imaging.Resize(img, sec.Size.X, sec.Size.Y, imaging.Lanczos)
	pt := anchor(sec.Position, sec.Size, sec.CenterOnPosition)

	if sec.Transparency {
		return imaging.Overlay(canvas, resized, pt, 1.0)
	}

	flat := imaging.Overlay(imaging.New(sec.Size.X, sec.Size.Y, color.White), resized, image.Pt(0, 0), 1.0)
	return imaging.Paste(canvas, flat, pt)
}

// anchor returns the top-left corner for an element of the given size.
func anchor(pos, size image.Point, center bool) image.Point {
	if !center {
		return pos
	}
	return image.Pt(
		pos.X-int(math.Round(float64(size.X)/2)),
		pos.Y-int(math.Round(float64(size.Y)/2)),
	)
}
