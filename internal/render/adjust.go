package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

// ToRGBA returns a copy of the image as an RGBA image whose bounds start at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	return out
}

// mapPixels returns a copy of img with fn applied to the colour channels of every
// pixel. Alpha is preserved.
func mapPixels(img *image.RGBA, fn func(r, g, b float64) (float64, float64, float64)) *image.RGBA {
	out := image.NewRGBA(img.Rect)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		r, g, b := fn(float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2]))
		out.Pix[i] = clamp(r)
		out.Pix[i+1] = clamp(g)
		out.Pix[i+2] = clamp(b)
		out.Pix[i+3] = img.Pix[i+3]
	}

	return out
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

func luma(r, g, b float64) float64 {
	return (r*299 + g*587 + b*114) / 1000
}

// Contrast scales the distance of every channel from the mean luminance of the
// image by factor. A factor of 1 leaves the image unchanged; 0 yields flat grey.
func Contrast(img *image.RGBA, factor float64) *image.RGBA {
	total, count := 0.0, 0
	for i := 0; i+3 < len(img.Pix); i += 4 {
		total += luma(float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2]))
		count++
	}

	mean := 0.0
	if count > 0 {
		mean = math.Floor(total/float64(count) + 0.5)
	}

	return mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		return mean + factor*(r-mean), mean + factor*(g-mean), mean + factor*(b-mean)
	})
}

// Brightness multiplies every channel by factor.
func Brightness(img *image.RGBA, factor float64) *image.RGBA {
	return mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		return r * factor, g * factor, b * factor
	})
}

// Grayscale replaces every pixel with its luminance.
func Grayscale(img *image.RGBA) *image.RGBA {
	return mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		l := math.Floor(luma(r, g, b))
		return l, l, l
	})
}

// BlendColor mixes a solid colour in to the image, alpha being the weight of the colour.
func BlendColor(img *image.RGBA, c color.RGBA, alpha float64) *image.RGBA {
	cr, cg, cb := float64(c.R), float64(c.G), float64(c.B)
	return mapPixels(img, func(r, g, b float64) (float64, float64, float64) {
		return r*(1-alpha) + cr*alpha, g*(1-alpha) + cg*alpha, b*(1-alpha) + cb*alpha
	})
}

// Sharpness interpolates between a smoothed copy of the image (factor 0) and the
// image itself (factor 1). Factors above 1 sharpen. Edge pixels are unchanged.
func Sharpness(img *image.RGBA, factor float64) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := ToRGBA(img)
	if w < 3 || h < 3 {
		return out
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			o := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				sum := 0.0
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						weight := 1.0
						if dx == 0 && dy == 0 {
							weight = 5
						}
						sum += weight * float64(img.Pix[img.PixOffset(x+dx, y+dy)+c])
					}
				}

				smooth := sum / 13
				out.Pix[o+c] = clamp(smooth + factor*(float64(img.Pix[o+c])-smooth))
			}
		}
	}

	return out
}

// GaussianBlur blurs the image with a gaussian of the given radius (standard
// deviation), applied as two separable passes.
func GaussianBlur(img *image.RGBA, radius float64) *image.RGBA {
	if radius <= 0 {
		return ToRGBA(img)
	}

	size := int(math.Ceil(radius * 3))
	kernel := make([]float64, 2*size+1)
	total := 0.0
	for i := -size; i <= size; i++ {
		kernel[i+size] = math.Exp(-float64(i*i) / (2 * radius * radius))
		total += kernel[i+size]
	}
	for i := range kernel {
		kernel[i] /= total
	}

	return convolve(convolve(img, kernel, true), kernel, false)
}

func convolve(img *image.RGBA, kernel []float64, horizontal bool) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	size := len(kernel) / 2
	out := image.NewRGBA(img.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc [4]float64
			for k := -size; k <= size; k++ {
				sx, sy := x, y
				if horizontal {
					sx = clampInt(x+k, 0, w-1)
				} else {
					sy = clampInt(y+k, 0, h-1)
				}

				o := img.PixOffset(sx, sy)
				for c := 0; c < 4; c++ {
					acc[c] += kernel[k+size] * float64(img.Pix[o+c])
				}
			}

			o := out.PixOffset(x, y)
			for c := 0; c < 4; c++ {
				out.Pix[o+c] = clamp(acc[c])
			}
		}
	}

	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}

// Fit scales and centre-crops the image so that it covers exactly width x height.
func Fit(img image.Image, width int, height int) *image.RGBA {
	b := img.Bounds()
	srcW, srcH := float64(b.Dx()), float64(b.Dy())
	target := float64(width) / float64(height)

	crop := b
	if srcW/srcH > target {
		cw := int(math.Round(srcH * target))
		x0 := b.Min.X + (b.Dx()-cw)/2
		crop = image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	} else {
		ch := int(math.Round(srcW / target))
		y0 := b.Min.Y + (b.Dy()-ch)/2
		crop = image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, crop, xdraw.Src, nil)
	return out
}

// ResizeToHeight scales the image to the given height, preserving aspect ratio.
func ResizeToHeight(img image.Image, height int) *image.RGBA {
	b := img.Bounds()
	width := int(float64(b.Dx()) * float64(height) / float64(b.Dy()))
	if width < 1 {
		width = 1
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, b, xdraw.Src, nil)
	return out
}

// HorizontalGradient composites black over the columns [x0, x1) of the image, its
// alpha moving linearly from a0 at x0 to a1 at x1.
func HorizontalGradient(img *image.RGBA, x0 int, x1 int, a0 uint8, a1 uint8) *image.RGBA {
	out := ToRGBA(img)
	w, h := out.Rect.Dx(), out.Rect.Dy()
	if x1 <= x0 {
		return out
	}

	for x := clampInt(x0, 0, w); x < clampInt(x1, 0, w); x++ {
		t := float64(x-x0) / float64(x1-x0)
		alpha := (float64(a0) + t*(float64(a1)-float64(a0))) / 255
		for y := 0; y < h; y++ {
			o := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				out.Pix[o+c] = clamp(float64(out.Pix[o+c]) * (1 - alpha))
			}
		}
	}

	return out
}

// DesaturateRegion replaces the pixels within the rectangle with their luminance.
func DesaturateRegion(img *image.RGBA, region image.Rectangle) *image.RGBA {
	out := ToRGBA(img)
	region = region.Intersect(out.Rect)
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			o := out.PixOffset(x, y)
			l := clamp(luma(float64(out.Pix[o]), float64(out.Pix[o+1]), float64(out.Pix[o+2])))
			out.Pix[o], out.Pix[o+1], out.Pix[o+2] = l, l, l
		}
	}

	return out
}

// Overlay scales the overlay to cover the image and composites it at the given
// opacity. Pure green pixels of the overlay are treated as transparent.
func Overlay(img *image.RGBA, overlay image.Image, opacity float64) *image.RGBA {
	scaled := image.NewRGBA(img.Rect)
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), overlay, overlay.Bounds(), xdraw.Src, nil)

	out := ToRGBA(img)
	for i := 0; i+3 < len(scaled.Pix); i += 4 {
		r, g, b, a := scaled.Pix[i], scaled.Pix[i+1], scaled.Pix[i+2], scaled.Pix[i+3]
		if g > 200 && r < 80 && b < 80 {
			continue
		}

		alpha := float64(a) / 255 * opacity
		for c, v := range []uint8{r, g, b} {
			out.Pix[i+c] = clamp(float64(out.Pix[i+c])*(1-alpha) + float64(v)*alpha)
		}
	}

	return out
}

// SideBySide places the images next to one another on a canvas as tall as the
// tallest of them, returning the canvas and the x offset of each image.
func SideBySide(images ...image.Image) (*image.RGBA, []int) {
	width, height := 0, 0
	for _, img := range images {
		width += img.Bounds().Dx()
		if img.Bounds().Dy() > height {
			height = img.Bounds().Dy()
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	offsets := make([]int, len(images))
	x := 0
	for i, img := range images {
		offsets[i] = x
		b := img.Bounds()
		draw.Draw(out, image.Rect(x, 0, x+b.Dx(), b.Dy()), img, b.Min, draw.Src)
		x += b.Dx()
	}

	return out, offsets
}
