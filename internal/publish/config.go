package publish

import "time"

const (
	BROWSER_DRIVER = "browser"
	API_DRIVER     = "api"
)

// Config contains the options which control how records are published.
type Config struct {
	// Populated from the top-level configuration
	SourceDirectory    string `yaml:"-"`
	ThumbnailDirectory string `yaml:"-"`
	Extension          string `yaml:"-"`

	Driver string `yaml:"driver" env:"PUBLISH_DRIVER" env-default:"browser" validate:"oneof=browser api"`

	// Every step must complete within StepTimeoutSeconds, except for the
	// wait on the platform to process the upload which is bounded
	// by ProcessingTimeoutSeconds.
	StepTimeoutSeconds       float64 `yaml:"step_timeout_seconds" env:"PUBLISH_STEP_TIMEOUT_SECONDS" env-default:"30" validate:"gt=0"`
	ProcessingTimeoutSeconds float64 `yaml:"processing_timeout_seconds" env:"PUBLISH_PROCESSING_TIMEOUT_SECONDS" env-default:"300" validate:"gt=0"`

	Playlist           string `yaml:"playlist" env:"PUBLISH_PLAYLIST"`
	RenameBeforeUpload bool   `yaml:"rename_before_upload" env:"PUBLISH_RENAME_BEFORE_UPLOAD" env-default:"false"`
	WizardSteps        int    `yaml:"wizard_steps" env:"PUBLISH_WIZARD_STEPS" env-default:"3" validate:"gte=0"`
	Visibility         string `yaml:"visibility" env:"PUBLISH_VISIBILITY" env-default:"public" validate:"oneof=public unlisted private"`
	MadeForKids        bool   `yaml:"made_for_kids" env:"PUBLISH_MADE_FOR_KIDS" env-default:"false"`

	// Browser driver
	StudioURL      string `yaml:"studio_url" env:"PUBLISH_STUDIO_URL" env-default:"https://studio.youtube.com"`
	BrowserProfile string `yaml:"browser_profile" env:"PUBLISH_BROWSER_PROFILE"`
	BrowserPath    string `yaml:"browser_path" env:"PUBLISH_BROWSER_PATH"`
	Headless       bool   `yaml:"headless" env:"PUBLISH_HEADLESS" env-default:"false"`

	// API driver
	ClientID     string `yaml:"youtube_client_id" env:"YOUTUBE_CLIENT_ID"`
	ClientSecret string `yaml:"youtube_client_secret" env:"YOUTUBE_CLIENT_SECRET"`
	RefreshToken string `yaml:"youtube_refresh_token" env:"YOUTUBE_REFRESH_TOKEN"`
	CategoryID   string `yaml:"category_id" env:"PUBLISH_CATEGORY_ID" env-default:"1"`
}

func (config *Config) stepTimeout() time.Duration {
	if config.StepTimeoutSeconds <= 0 {
		return 30 * time.Second
	}

	return time.Duration(config.StepTimeoutSeconds * float64(time.Second))
}

func (config *Config) processingTimeout() time.Duration {
	if config.ProcessingTimeoutSeconds <= 0 {
		return config.stepTimeout()
	}

	return time.Duration(config.ProcessingTimeoutSeconds * float64(time.Second))
}

func (config *Config) extension() string {
	if config.Extension == "" {
		return "mp4"
	}

	return config.Extension
}
