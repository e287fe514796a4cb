package ffmpeg

// Config contains the locations of the encoder binaries. Empty
// values fall back to looking the binaries up on the PATH.
type Config struct {
	FfmpegBinPath  string `yaml:"ffmpeg_binary" env:"FFMPEG_BINARY" env-default:"ffmpeg"`
	FfprobeBinPath string `yaml:"ffprobe_binary" env:"FFPROBE_BINARY" env-default:"ffprobe"`
}

func (config Config) ffmpegBin() string {
	if config.FfmpegBinPath == "" {
		return "ffmpeg"
	}

	return config.FfmpegBinPath
}

func (config Config) ffprobeBin() string {
	if config.FfprobeBinPath == "" {
		return "ffprobe"
	}

	return config.FfprobeBinPath
}
