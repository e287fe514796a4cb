package render

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/hbomb79/mediabatch/pkg/logger"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// LoadFace loads the TrueType/OpenType font at path with the size given. When
// the font cannot be loaded the built-in fixed face is returned instead, and the
// failure is logged.
func LoadFace(path string, size float64) font.Face {
	face, err := loadFace(path, size)
	if err != nil {
		log.Emit(logger.WARNING, "Font %q unavailable, using default font: %v\n", path, err)
		return basicfont.Face7x13
	}

	return face
}

func loadFace(path string, size float64) (font.Face, error) {
	if path == "" {
		return nil, fmt.Errorf("no font configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	return opentype.NewFace(parsed, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
}

// MeasureText returns the advance width and the line height of the text.
func MeasureText(face font.Face, text string) (int, int) {
	metrics := face.Metrics()
	return font.MeasureString(face, text).Ceil(), (metrics.Ascent + metrics.Descent).Ceil()
}

// TextWithStroke draws the text with its top-left corner at (x, y), outlined
// by strokeWidth pixels of the stroke colour.
func TextWithStroke(img *image.RGBA, face font.Face, text string, x int, y int, fill color.Color, stroke color.Color, strokeWidth int) {
	baseline := y + face.Metrics().Ascent.Ceil()
	drawer := &font.Drawer{Dst: img, Face: face}

	if strokeWidth > 0 {
		drawer.Src = image.NewUniform(stroke)
		for dy := -strokeWidth; dy <= strokeWidth; dy++ {
			for dx := -strokeWidth; dx <= strokeWidth; dx++ {
				if dx*dx+dy*dy > strokeWidth*strokeWidth || (dx == 0 && dy == 0) {
					continue
				}

				drawer.Dot = fixed.P(x+dx, baseline+dy)
				drawer.DrawString(text)
			}
		}
	}

	drawer.Src = image.NewUniform(fill)
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)
}

// CenteredText draws the text horizontally centred with its top edge at y.
func CenteredText(img *image.RGBA, face font.Face, text string, y int, fill color.Color, stroke color.Color, strokeWidth int) {
	width, _ := MeasureText(face, text)
	TextWithStroke(img, face, text, (img.Rect.Dx()-width)/2, y, fill, stroke, strokeWidth)
}
