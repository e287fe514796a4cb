package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

type (
	// commandRunner executes an external tool, returning its stdout. A non-zero
	// exit is returned as an error containing the tools stderr.
	commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

	ytdlpInfo struct {
		ID          string   `json:"id"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
		WebpageURL  string   `json:"webpage_url"`
		Entries     []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"entries"`
	}

	// YtdlpSource fetches details of streaming platform videos by running
	// yt-dlp as a subprocess.
	YtdlpSource struct {
		binary string
		run    commandRunner
	}

	toolError struct {
		tool   string
		stderr string
		err    error
	}
)

func NewYtdlpSource(config Config) *YtdlpSource {
	return &YtdlpSource{binary: config.YtdlpBinary, run: execCommand}
}

// Fetch runs the tool in JSON dump mode against the reference without downloading.
func (source *YtdlpSource) Fetch(ctx context.Context, reference string) (*Item, error) {
	out, err := source.run(ctx, source.binary, "-J", "--no-download", "--no-warnings", "--no-playlist", reference)
	if err != nil {
		return nil, classifyToolError(reference, err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, &MalformedResponseError{fmt.Sprintf("yt-dlp output for %s could not be unmarshalled: %s", reference, err)}
	}

	mediaURL := info.WebpageURL
	if mediaURL == "" {
		mediaURL = reference
	}

	return &Item{
		Identifier:  info.ID,
		Title:       info.Title,
		Description: info.Description,
		Tags:        info.Tags,
		MediaURL:    mediaURL,
	}, nil
}

// Playlist lists the video URLs of the playlist or channel provided.
func (source *YtdlpSource) Playlist(ctx context.Context, playlistURL string) ([]string, error) {
	out, err := source.run(ctx, source.binary, "-J", "--flat-playlist", "--no-warnings", playlistURL)
	if err != nil {
		return nil, classifyToolError(playlistURL, err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, &MalformedResponseError{fmt.Sprintf("yt-dlp playlist output could not be unmarshalled: %s", err)}
	}

	urls := make([]string, 0, len(info.Entries))
	for _, entry := range info.Entries {
		switch {
		case entry.URL != "":
			urls = append(urls, entry.URL)
		case entry.ID != "":
			urls = append(urls, entry.ID)
		}
	}

	return urls, nil
}

// Download fetches the media of the reference in to the directory given,
// named after the label provided. The path of the downloaded file is returned.
func (source *YtdlpSource) Download(ctx context.Context, reference string, dir string, label int, ext string) (string, error) {
	output := filepath.Join(dir, strconv.Itoa(label)+".%(ext)s")
	_, err := source.run(ctx, source.binary,
		"--no-warnings", "--no-playlist",
		"-f", fmt.Sprintf("bv*[ext=%[1]s]+ba/b[ext=%[1]s]/b", ext),
		"--merge-output-format", ext,
		"-o", output,
		reference,
	)
	if err != nil {
		return "", classifyToolError(reference, err)
	}

	return filepath.Join(dir, fmt.Sprintf("%d.%s", label, ext)), nil
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &toolError{tool: name, stderr: strings.TrimSpace(stderr.String()), err: err}
	}

	return stdout.Bytes(), nil
}

func classifyToolError(reference string, err error) error {
	var te *toolError
	if !errors.As(err, &te) {
		return err
	}

	lower := strings.ToLower(te.stderr)
	switch {
	case strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "http error 404"),
		strings.Contains(lower, "private video"):
		return &Trouble{error: err, tType: NOT_FOUND}
	case strings.Contains(lower, "unsupported url"):
		return &Trouble{error: err, tType: GENERIC_FAILURE}
	case errors.Is(te.err, exec.ErrNotFound):
		return &Trouble{error: err, tType: GENERIC_FAILURE}
	}

	return &Trouble{error: err, tType: TRANSIENT}
}

func (err *toolError) Error() string {
	if err.stderr == "" {
		return fmt.Sprintf("%s failed: %v", err.tool, err.err)
	}

	return fmt.Sprintf("%s failed: %v: %s", err.tool, err.err, err.stderr)
}

func (err *toolError) Unwrap() error { return err.err }
