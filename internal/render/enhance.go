package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/hbomb79/mediabatch/pkg/logger"
	xdraw "golang.org/x/image/draw"
)

type ImageOp int

const (
	ENHANCE ImageOp = iota
	RESIZE
	WHITEN
)

var imageOpNames = map[ImageOp]string{ENHANCE: "enhanced", RESIZE: "resized", WHITEN: "white"}

func (op ImageOp) String() string {
	if name, ok := imageOpNames[op]; ok {
		return name
	}

	return fmt.Sprintf("IMAGE_OP[%d]", op)
}

// ParseImageOp accepts 'enhance', 'resize' or 'whiten'.
func ParseImageOp(name string) (ImageOp, error) {
	switch strings.ToLower(name) {
	case "enhance":
		return ENHANCE, nil
	case "resize":
		return RESIZE, nil
	case "whiten":
		return WHITEN, nil
	default:
		return 0, fmt.Errorf("unknown image operation %q", name)
	}
}

// Enhance sharpens the image by a factor of 4 and brightens it by 5%.
func Enhance(img image.Image) *image.RGBA {
	return Brightness(Sharpness(ToRGBA(img), 4), 1.05)
}

// Resize scales the image to exactly width x height, ignoring aspect ratio.
func Resize(img image.Image, width int, height int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return out
}

// ReplaceColour replaces every pixel whose colour channels exactly match from
// with to. Colours are compared without alpha premultiplication, and the alpha
// of every pixel is preserved.
func ReplaceColour(img image.Image, from color.RGBA, to color.RGBA) *image.NRGBA {
	out := toNRGBA(img)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		if out.Pix[i] == from.R && out.Pix[i+1] == from.G && out.Pix[i+2] == from.B {
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = to.R, to.G, to.B
		}
	}

	return out
}

func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(out.Pix[y*out.Stride:(y+1)*out.Stride], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return out
	}

	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// ApplyImageOp reads the image at path, applies the operation and writes the
// result alongside it as '{name}_{op}{ext}', returning the path written. The
// source is never modified.
func (config *Config) ApplyImageOp(path string, op ImageOp) (string, error) {
	img, err := decodeImage(path)
	if err != nil {
		return "", err
	}

	var out image.Image
	switch op {
	case ENHANCE:
		out = Enhance(img)
	case RESIZE:
		out = Resize(img, config.Width, config.Height)
	case WHITEN:
		out = ReplaceColour(img, color.RGBA{0, 0, 0, 255}, color.RGBA{255, 255, 255, 255})
	default:
		return "", fmt.Errorf("unknown image operation %s", op)
	}

	ext := filepath.Ext(path)
	output := fmt.Sprintf("%s_%s%s", strings.TrimSuffix(path, ext), op, ext)
	if err := writeImage(output, out, config.JPEGQuality); err != nil {
		return "", err
	}

	log.Emit(logger.SUCCESS, "Image %s %s -> %s\n", path, op, output)
	return output, nil
}

// writeImage encodes the image as a JPEG or PNG, chosen by the extension of
// the path. Other extensions are written as PNG.
func writeImage(path string, img image.Image, quality int) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return writeJPEG(path, img, quality)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}

	return f.Close()
}
