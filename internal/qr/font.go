package qr

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	titleFontSize = 50
	labelFontSize = 35
	fontDPI       = 72
)

type faceSet struct {
	title font.Face
	label font.Face
}

var (
	facesOnce   sync.Once
	cachedFaces faceSet
)

// loadFaces builds the preferred vector faces once, falling back to the
// default bitmap face when parsing or face construction fails.
func loadFaces() faceSet {
	facesOnce.Do(func() {
		cachedFaces = faceSet{
			title: basicfont.Face7x13,
			label: basicfont.Face7x13,
		}

		parsed, err := opentype.Parse(goregular.TTF)
		if err != nil {
			return
		}

		title, err := opentype.NewFace(parsed, &opentype.FaceOptions{
			Size:    titleFontSize,
			DPI:     fontDPI,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return
		}

		label, err := opentype.NewFace(parsed, &opentype.FaceOptions{
			Size:    labelFontSize,
			DPI:     fontDPI,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return
		}

		cachedFaces = faceSet{title: title, label: label}
	})

	return cachedFaces
}

// drawText renders s with its top-left corner at (x, y); the drawer's dot is
// the baseline, so the face ascent is added to y.
func drawText(dst draw.Image, s string, x, y int, face font.Face, fill color.Color) {
	if s == "" {
		return
	}

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(fill),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}

	drawer.DrawString(s)
}
