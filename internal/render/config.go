package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

const (
	SINGLE_TEMPLATE = "single"
	PAIR_TEMPLATE   = "pair"
)

// Config contains the options which control how thumbnails are rendered.
type Config struct {
	// Populated from the top-level configuration
	SourceDirectory     string  `yaml:"-"`
	ThumbnailDirectory  string  `yaml:"-"`
	Extension           string  `yaml:"-"`
	ConfidenceThreshold float64 `yaml:"-"`
	OverlapThreshold    float64 `yaml:"-"`

	Template string `yaml:"template" env:"RENDER_TEMPLATE" env-default:"single" validate:"oneof=single pair"`

	// Offset in to the media from which the frame is captured. The pair
	// template captures its second frame at SecondFrameAtSeconds when no
	// poster can be found.
	FrameAtSeconds       float64 `yaml:"frame_at_seconds" env:"RENDER_FRAME_AT_SECONDS" env-default:"20"`
	SecondFrameAtSeconds float64 `yaml:"second_frame_at_seconds" env:"RENDER_SECOND_FRAME_AT_SECONDS" env-default:"60"`

	FontPath string `yaml:"font_path" env:"RENDER_FONT_PATH"`
	Text     string `yaml:"text" env:"RENDER_TEXT" env-default:"Rediscover The Past"`
	PairText string `yaml:"pair_text" env:"RENDER_PAIR_TEXT" env-default:"PAST IN COLOR"`
	Subtitle string `yaml:"subtitle" env:"RENDER_SUBTITLE" env-default:"A Journey Through Time"`

	Width      int `yaml:"width" env:"RENDER_WIDTH" env-default:"1280" validate:"gte=16"`
	Height     int `yaml:"height" env:"RENDER_HEIGHT" env-default:"720" validate:"gte=16"`
	PairHeight int `yaml:"pair_height" env:"RENDER_PAIR_HEIGHT" env-default:"800" validate:"gte=16"`

	// Single template hue, and the pair template hue for its second image.
	TintColour   string `yaml:"tint_colour" env:"RENDER_TINT_COLOUR" env-default:"#0000FF"`
	SunsetColour string `yaml:"sunset_colour" env:"RENDER_SUNSET_COLOUR" env-default:"#FF4500"`

	DetectorEndpoint string `yaml:"detector_endpoint" env:"RENDER_DETECTOR_ENDPOINT"`
	DetectorAPIKey   string `yaml:"detector_api_key" env:"RENDER_DETECTOR_API_KEY"`

	CloudOverlayPath string `yaml:"cloud_overlay_path" env:"RENDER_CLOUD_OVERLAY_PATH"`

	// When enabled, the pair template looks up a poster for the record title
	// to use as its second image.
	UsePosters bool `yaml:"use_posters" env:"RENDER_USE_POSTERS" env-default:"false"`

	JPEGQuality int `yaml:"jpeg_quality" env:"RENDER_JPEG_QUALITY" env-default:"90" validate:"gte=1,lte=100"`
}

func (config *Config) extension() string {
	if config.Extension == "" {
		return "mp4"
	}

	return config.Extension
}

// ParseHexColour parses colours of the form '#RRGGBB'.
func ParseHexColour(hex string) (color.RGBA, error) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("colour %q is not of the form #RRGGBB", hex)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("colour %q is not valid hex: %w", hex, err)
	}

	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func mustColour(hex string, fallback color.RGBA) color.RGBA {
	c, err := ParseHexColour(hex)
	if err != nil {
		return fallback
	}

	return c
}
