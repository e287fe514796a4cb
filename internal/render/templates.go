package render

import (
	"image"
	"image/color"
)

var (
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
)

type (
	// SingleStyle parameterises the single image template.
	SingleStyle struct {
		FontPath string
		Text     string
		Width    int
		Height   int
		Tint     color.RGBA
	}

	// PairStyle parameterises the two image template.
	PairStyle struct {
		FontPath string
		Text     string
		Subtitle string
		Height   int
		Hue      color.RGBA
	}
)

// Single renders a thumbnail from one frame: the detected region (if any) is
// desaturated, the frame is enhanced in greyscale and tinted, fit to the
// target size, shaded from the left, captioned and given a rounded border.
func Single(frame image.Image, region *image.Rectangle, style SingleStyle) *image.RGBA {
	img := ToRGBA(frame)
	if region != nil {
		img = DesaturateRegion(img, *region)
	}

	img = Grayscale(img)
	img = Contrast(img, 1.2)
	img = Sharpness(img, 1.2)
	img = Brightness(img, 1.4)
	img = BlendColor(img, style.Tint, 0.2)

	img = Fit(img, style.Width, style.Height)
	img = HorizontalGradient(img, 0, style.Width, 255, 0)

	if style.Text != "" {
		face := LoadFace(style.FontPath, 80)
		_, textHeight := MeasureText(face, style.Text)
		CenteredText(img, face, style.Text, style.Height-textHeight-30, white, black, 2)
	}

	return RoundedBorder(img, white, 20, 50)
}

// Pair renders a thumbnail from two images placed side by side. The left image
// is strongly enhanced, the right is given a warm hue and softened. The seam
// between them is shaded, an optional overlay is applied, and a title and
// subtitle are drawn inside a thin frame.
func Pair(left image.Image, right image.Image, overlay image.Image, style PairStyle) *image.RGBA {
	l := ToRGBA(left)
	l = Contrast(l, 2)
	l = Sharpness(l, 2)
	l = Brightness(l, 1.8)

	r := BlendColor(ToRGBA(right), style.Hue, 0.3)
	r = Contrast(r, 1.5)
	r = Brightness(r, 1.3)
	r = GaussianBlur(r, 1)

	img, offsets := SideBySide(ResizeToHeight(l, style.Height), ResizeToHeight(r, style.Height))
	seam := offsets[1]
	img = HorizontalGradient(img, seam-100, seam, 0, 160)
	img = HorizontalGradient(img, seam, seam+100, 160, 0)

	if overlay != nil {
		img = Overlay(img, overlay, 0.5)
	}

	height := img.Rect.Dy()
	if style.Text != "" {
		face := LoadFace(style.FontPath, 100)
		_, textHeight := MeasureText(face, style.Text)
		CenteredText(img, face, style.Text, height/2-textHeight-20, white, black, 2)
	}
	if style.Subtitle != "" {
		face := LoadFace(style.FontPath, 50)
		CenteredText(img, face, style.Subtitle, height/2+50, white, black, 1)
	}

	return Frame(img, white, 4)
}
