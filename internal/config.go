package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/mediabatch/internal/fetch"
	"github.com/hbomb79/mediabatch/internal/publish"
	"github.com/hbomb79/mediabatch/internal/render"
	"github.com/hbomb79/mediabatch/internal/rewrite"
	"github.com/hbomb79/mediabatch/internal/schedule"
	"github.com/hbomb79/mediabatch/internal/transform"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// LabelRange bounds the labels a command operates on. An End of
// zero means 'up to the highest label in the store'.
type LabelRange struct {
	Start int `yaml:"start" env:"LABEL_RANGE_START" env-default:"1" validate:"gte=1"`
	End   int `yaml:"end" env:"LABEL_RANGE_END" env-default:"0" validate:"omitempty,gtefield=Start"`
}

// Config is the struct used to contain the user config supplied by
// file and environment. The options shared by several stages live at the
// top level and are copied in to each stages own config when it is built.
type Config struct {
	SourceDirectory    string `yaml:"source_directory" env:"SOURCE_DIRECTORY" env-default:"./media" validate:"required"`
	OutputDirectory    string `yaml:"output_directory" env:"OUTPUT_DIRECTORY" env-default:"./shorts" validate:"required"`
	ThumbnailDirectory string `yaml:"thumbnail_directory" env:"THUMBNAIL_DIRECTORY" env-default:"./thumbnails" validate:"required"`
	StorePath          string `yaml:"store_path" env:"STORE_PATH" env-default:"./records.json" validate:"required"`

	LabelRange     LabelRange `yaml:"label_range"`
	DefaultLabel   int        `yaml:"default_label" env:"DEFAULT_LABEL" env-default:"1" validate:"gte=1"`
	MediaExtension string     `yaml:"media_extension" env:"MEDIA_EXTENSION" env-default:"mp4" validate:"required,alphanum"`

	// Size of the fetch worker pool, and the total number of attempts
	// made for each fetch and download before the item is skipped.
	WorkerCount int `yaml:"worker_count" env:"WORKER_COUNT" env-default:"5" validate:"gte=1"`
	RetryCount  int `yaml:"retry_count" env:"RETRY_COUNT" env-default:"2" validate:"gte=1"`

	IntervalDurationSeconds float64 `yaml:"interval_duration_seconds" env:"INTERVAL_DURATION_SECONDS" env-default:"15" validate:"gt=0"`
	ConfidenceThreshold     float64 `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD" env-default:"0.5" validate:"gte=0,lte=1"`
	OverlapThreshold        float64 `yaml:"overlap_threshold" env:"OVERLAP_THRESHOLD" env-default:"0.4" validate:"gte=0,lte=1"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=verbose debug info warning error"`

	Fetch     fetch.Config     `yaml:"fetch"`
	Transform transform.Config `yaml:"transform"`
	Render    render.Config    `yaml:"render"`
	Rewrite   rewrite.Config   `yaml:"rewrite"`
	Schedule  schedule.Config  `yaml:"schedule"`
	Publish   publish.Config   `yaml:"publish"`
}

// LoadConfig reads the configuration from the YAML file at configPath, with
// environment variables taking precedence. Variables from an .env file at
// envPath are loaded first when the file exists. An empty configPath reads
// the configuration from the environment alone.
func LoadConfig(configPath string, envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load environment file %s: %w", envPath, err)
		}
	}

	config := &Config{}
	if configPath == "" {
		if err := cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to load configuration %s: %w", configPath, err)
	}

	if err := config.resolve(); err != nil {
		return nil, err
	}

	return config, nil
}

// resolve expands '~' in every configured path, and then validates the
// entire configuration.
func (config *Config) resolve() error {
	paths := []*string{
		&config.SourceDirectory, &config.OutputDirectory, &config.ThumbnailDirectory, &config.StorePath,
		&config.Transform.WatermarkPath, &config.Transform.FontPath, &config.Transform.MusicPath,
		&config.Render.FontPath, &config.Render.CloudOverlayPath,
		&config.Publish.BrowserProfile, &config.Publish.BrowserPath,
	}
	for _, p := range paths {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}

	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}
	if config.Schedule.StartDate != "" || config.Schedule.EndDate != "" {
		if _, _, err := config.Schedule.Range(); err != nil {
			return fmt.Errorf("schedule configuration is invalid: %w", err)
		}
	}
	if config.Transform.WatermarkRegion != "" {
		if _, err := transform.ParseRegion(config.Transform.WatermarkRegion); err != nil {
			return fmt.Errorf("transform configuration is invalid: %w", err)
		}
	}

	return nil
}

func (config *Config) FetchConfig() fetch.Config {
	c := config.Fetch
	c.WorkerCount = config.WorkerCount
	c.RetryCount = config.RetryCount
	return c
}

func (config *Config) TransformConfig() transform.Config {
	c := config.Transform
	c.SourceDirectory = config.SourceDirectory
	c.OutputDirectory = config.OutputDirectory
	c.Extension = config.MediaExtension
	c.IntervalSeconds = config.IntervalDurationSeconds
	return c
}

func (config *Config) RenderConfig() render.Config {
	c := config.Render
	c.SourceDirectory = config.SourceDirectory
	c.ThumbnailDirectory = config.ThumbnailDirectory
	c.Extension = config.MediaExtension
	c.ConfidenceThreshold = config.ConfidenceThreshold
	c.OverlapThreshold = config.OverlapThreshold
	return c
}

func (config *Config) PublishConfig() publish.Config {
	c := config.Publish
	c.SourceDirectory = config.SourceDirectory
	c.ThumbnailDirectory = config.ThumbnailDirectory
	c.Extension = config.MediaExtension
	return c
}

// DefaultConfig renders the default configuration as YAML. Credentials are
// never included, even when present in the environment.
func DefaultConfig() ([]byte, error) {
	config := &Config{}
	if err := cleanenv.ReadEnv(config); err != nil {
		return nil, fmt.Errorf("failed to derive default configuration: %w", err)
	}

	config.Rewrite.APIKey = ""
	config.Render.DetectorAPIKey = ""
	config.Publish.ClientID = ""
	config.Publish.ClientSecret = ""
	config.Publish.RefreshToken = ""

	return yaml.Marshal(config)
}

// WriteDefaultConfig writes the default configuration to the path given,
// refusing to replace an existing file.
func WriteDefaultConfig(path string) error {
	out, err := DefaultConfig()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
