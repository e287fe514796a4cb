package fetch

import "time"

// Config contains the options which control how references are
// fetched from the external archives.
type Config struct {
	// The number of references fetched concurrently. Keep this low, the
	// archives rate limit aggressively.
	WorkerCount int `yaml:"-"`

	// The total number of attempts made for a reference before it is
	// skipped. A value of 2 means the first attempt plus one retry.
	RetryCount int `yaml:"-"`

	// Delay between attempts for a single reference.
	RetryDelayMillis int `yaml:"retry_delay_ms" env:"FETCH_RETRY_DELAY_MS" env-default:"1000"`

	// Maximum number of HTTP requests per second issued to the archives. Zero
	// disables rate limiting.
	RequestRate float64 `yaml:"request_rate" env:"FETCH_REQUEST_RATE" env-default:"2"`

	ArchiveBaseURL  string `yaml:"archive_base_url" env:"FETCH_ARCHIVE_BASE_URL" env-default:"https://archive.org"`
	SearchRows      int    `yaml:"search_rows" env:"FETCH_SEARCH_ROWS" env-default:"100"`
	YtdlpBinary     string `yaml:"ytdlp_binary" env:"FETCH_YTDLP_BINARY" env-default:"yt-dlp"`
	PosterSearchURL string `yaml:"poster_search_url" env:"FETCH_POSTER_SEARCH_URL" env-default:"https://www.imdb.com/find/?s=tt&ttype=ft&q=%s"`
	PosterBaseURL   string `yaml:"poster_base_url" env:"FETCH_POSTER_BASE_URL" env-default:"https://www.imdb.com"`
	UserAgent       string `yaml:"user_agent" env:"FETCH_USER_AGENT" env-default:"mediabatch/1.0"`
	ShowProgress    bool   `yaml:"show_progress" env:"FETCH_SHOW_PROGRESS" env-default:"true"`
}

func (config *Config) RetryDelay() time.Duration {
	return time.Duration(config.RetryDelayMillis) * time.Millisecond
}

func (config *Config) attempts() int {
	if config.RetryCount < 1 {
		return 1
	}

	return config.RetryCount
}

func (config *Config) workers(tasks int) int {
	n := config.WorkerCount
	if n < 1 {
		n = 1
	}
	if tasks < n {
		n = tasks
	}

	return n
}
