package render

import (
	"image"
	"image/color"
	"image/draw"
)

// RoundedBorder adds bands of the given colour, thickness pixels tall, above and
// below the image. The corners of the result are rounded with the radius given
// and are left black.
func RoundedBorder(img *image.RGBA, c color.RGBA, thickness int, radius int) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()+2*thickness
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(0, thickness, w, thickness+img.Rect.Dy()), img, img.Rect.Min, draw.Src)

	if radius > w/2 {
		radius = w / 2
	}
	if radius > h/2 {
		radius = h / 2
	}

	corners := []image.Point{{radius, radius}, {w - radius - 1, radius}, {radius, h - radius - 1}, {w - radius - 1, h - radius - 1}}
	for i, centre := range corners {
		xFrom, xTo := 0, radius
		if i%2 == 1 {
			xFrom, xTo = w-radius, w
		}
		yFrom, yTo := 0, radius
		if i >= 2 {
			yFrom, yTo = h-radius, h
		}

		for y := yFrom; y < yTo; y++ {
			for x := xFrom; x < xTo; x++ {
				dx, dy := x-centre.X, y-centre.Y
				if dx*dx+dy*dy > radius*radius {
					out.SetRGBA(x, y, black)
				}
			}
		}
	}

	return out
}

// Frame draws a line of the given colour and thickness along each edge of the image.
func Frame(img *image.RGBA, c color.RGBA, thickness int) *image.RGBA {
	out := ToRGBA(img)
	w, h := out.Rect.Dx(), out.Rect.Dy()
	src := image.NewUniform(c)

	for _, r := range []image.Rectangle{
		image.Rect(0, 0, w, thickness),
		image.Rect(0, h-thickness, w, h),
		image.Rect(0, 0, thickness, h),
		image.Rect(w-thickness, 0, w, h),
	} {
		draw.Draw(out, r, src, image.Point{}, draw.Src)
	}

	return out
}
