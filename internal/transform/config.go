package transform

import (
	"time"

	"github.com/hbomb79/mediabatch/internal/ffmpeg"
)

// Config contains the options which control how source media is
// cut, recomposed and split in to short clips.
type Config struct {
	ffmpeg.Config `yaml:",inline"`

	// Directories and extension shared with the rest of the pipeline,
	// populated from the top-level configuration.
	SourceDirectory string  `yaml:"-"`
	OutputDirectory string  `yaml:"-"`
	Extension       string  `yaml:"-"`
	IntervalSeconds float64 `yaml:"-"`

	// Seconds removed from the start and end of the source by the cut operation.
	TrimHeadSeconds float64 `yaml:"trim_head_seconds" env:"TRANSFORM_TRIM_HEAD_SECONDS" env-default:"5"`
	TrimTailSeconds float64 `yaml:"trim_tail_seconds" env:"TRANSFORM_TRIM_TAIL_SECONDS" env-default:"0"`

	// Seconds removed from both ends of the source before it is split.
	MarginSeconds float64 `yaml:"margin_seconds" env:"TRANSFORM_MARGIN_SECONDS" env-default:"10"`

	// A burned-in watermark to remove from the source before it is cut,
	// given as 'x,y,w,h'. Nothing is removed when empty.
	WatermarkRegion string `yaml:"watermark_region" env:"TRANSFORM_WATERMARK_REGION"`

	WatermarkPath    string  `yaml:"watermark_path" env:"TRANSFORM_WATERMARK_PATH"`
	WatermarkOpacity float64 `yaml:"watermark_opacity" env:"TRANSFORM_WATERMARK_OPACITY" env-default:"0.3" validate:"gte=0,lte=1"`

	// Text drawn over each short. When empty, the title of the record is used.
	OverlayText  string  `yaml:"overlay_text" env:"TRANSFORM_OVERLAY_TEXT"`
	FontPath     string  `yaml:"font_path" env:"TRANSFORM_FONT_PATH"`
	FontSize     int     `yaml:"font_size" env:"TRANSFORM_FONT_SIZE" env-default:"64"`
	FontColour   string  `yaml:"font_colour" env:"TRANSFORM_FONT_COLOUR" env-default:"white"`
	StrokeWidth  int     `yaml:"stroke_width" env:"TRANSFORM_STROKE_WIDTH" env-default:"4"`
	StrokeColour string  `yaml:"stroke_colour" env:"TRANSFORM_STROKE_COLOUR" env-default:"black"`
	TextPosition float64 `yaml:"text_position" env:"TRANSFORM_TEXT_POSITION" env-default:"0.1"`

	// A music file, or a directory from which the first audio file is used.
	MusicPath string `yaml:"music_path" env:"TRANSFORM_MUSIC_PATH"`

	ShortsWidth  int `yaml:"shorts_width" env:"TRANSFORM_SHORTS_WIDTH" env-default:"1080" validate:"gte=2"`
	ShortsHeight int `yaml:"shorts_height" env:"TRANSFORM_SHORTS_HEIGHT" env-default:"1920" validate:"gte=2"`

	// Name of the JSON file, within the output directory, mapping each
	// short back to the source it was cut from.
	MappingFile string `yaml:"mapping_file" env:"TRANSFORM_MAPPING_FILE" env-default:"video_map.json"`

	// The watcher is backed by a regular forced sync in case
	// file system events are missed.
	ForceSyncSeconds int `yaml:"force_sync_seconds" env:"TRANSFORM_FORCE_SYNC_SECONDS" env-default:"60"`

	// New files are likely still being written, so they are only processed once
	// their modtime is at least this far in the past.
	RequiredModTimeAgeSeconds int `yaml:"required_modtime_age_seconds" env:"TRANSFORM_REQUIRED_MODTIME_AGE_SECONDS" env-default:"10"`
}

func (config *Config) ForceSyncDuration() time.Duration {
	if config.ForceSyncSeconds < 1 {
		return time.Minute
	}

	return time.Duration(config.ForceSyncSeconds) * time.Second
}

func (config *Config) RequiredModTimeAgeDuration() time.Duration {
	return time.Duration(config.RequiredModTimeAgeSeconds) * time.Second
}

func (config *Config) extension() string {
	if config.Extension == "" {
		return "mp4"
	}

	return config.Extension
}
