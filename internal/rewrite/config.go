package rewrite

import "time"

// Config contains the options for the text-generation service used to
// rewrite record titles and descriptions.
type Config struct {
	Endpoint     string `yaml:"endpoint" env:"REWRITE_ENDPOINT" env-default:"https://api.openai.com/v1/chat/completions"`
	Model        string `yaml:"model" env:"REWRITE_MODEL" env-default:"gpt-3.5-turbo"`
	APIKey       string `yaml:"api_key" env:"OPENAI_API_KEY"`
	SystemPrompt string `yaml:"system_prompt" env:"REWRITE_SYSTEM_PROMPT" env-default:"You are a helpful assistant."`

	TimeoutSeconds int `yaml:"timeout_seconds" env:"REWRITE_TIMEOUT_SECONDS" env-default:"20" validate:"gte=1"`
	Attempts       int `yaml:"attempts" env:"REWRITE_ATTEMPTS" env-default:"2" validate:"gte=1"`

	// Appended to every rewritten description, separated by a blank line.
	ContactFooter string `yaml:"contact_footer" env:"REWRITE_CONTACT_FOOTER"`

	// Tags placed ahead of a records existing tags.
	ExtraTags []string `yaml:"extra_tags" env:"REWRITE_EXTRA_TAGS" env-separator:"," env-default:"vintage archive,archive"`
}

func (config *Config) timeout() time.Duration {
	if config.TimeoutSeconds < 1 {
		return 20 * time.Second
	}

	return time.Duration(config.TimeoutSeconds) * time.Second
}

func (config *Config) attempts() int {
	if config.Attempts < 1 {
		return 1
	}

	return config.Attempts
}
