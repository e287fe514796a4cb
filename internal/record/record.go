package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// Sentinels used by the fetch stage when a field could not be
	// found. Downstream stages compare against these to detect
	// low-confidence fetches.
	NoTitle       = "No Title"
	NoDescription = "No Description"
	NoMediaURL    = "No Video URL Found"
)

type (
	Status int

	// Record is the per-item metadata persisted in the record store. The
	// Label is the join key between a record and any media/thumbnail
	// files produced for it.
	Record struct {
		Label           int        `json:"label" validate:"required,gte=1"`
		SourceReference string     `json:"source_reference"`
		Identifier      string     `json:"identifier,omitempty"`
		Title           string     `json:"title" validate:"required"`
		Description     string     `json:"description"`
		Tags            []string   `json:"tags"`
		MediaURL        string     `json:"media_url,omitempty"`
		MediaPath       string     `json:"media_path,omitempty"`
		ThumbnailPath   string     `json:"thumbnail_path,omitempty"`
		Provenance      string     `json:"provenance,omitempty"`
		ScheduleAt      *time.Time `json:"schedule_at,omitempty"`
		Status          Status     `json:"status"`
		FailureReason   string     `json:"failure_reason,omitempty"`
	}
)

const (
	UNKNOWN Status = iota
	FETCHED
	TRANSFORMED
	RENDERED
	SCHEDULED
	PUBLISHED
	FAILED
)

var (
	statusNames = map[Status]string{
		FETCHED:     "fetched",
		TRANSFORMED: "transformed",
		RENDERED:    "rendered",
		SCHEDULED:   "scheduled",
		PUBLISHED:   "published",
		FAILED:      "failed",
	}

	validate = validator.New()

	ErrUnknownStatus = errors.New("unknown record status")
)

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return fmt.Sprintf("%s[%d]", strings.ToUpper(name), s)
	}

	return fmt.Sprintf("UNKNOWN[%d]", s)
}

func (s Status) MarshalJSON() ([]byte, error) {
	if s == UNKNOWN {
		return json.Marshal("")
	}

	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, s)
	}

	return json.Marshal(name)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}

	*s = parsed
	return nil
}

// ParseStatus returns the status with the given name. An empty
// name yields UNKNOWN.
func ParseStatus(name string) (Status, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return UNKNOWN, nil
	}

	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}

	return UNKNOWN, fmt.Errorf("%w: %q", ErrUnknownStatus, name)
}

// Validate checks the record carries the fields every stage relies on.
func (r *Record) Validate() error {
	return validate.Struct(r)
}

// LowConfidence reports whether the fetch that produced this record
// had to substitute a sentinel for any field.
func (r *Record) LowConfidence() bool {
	return r.Title == NoTitle || r.Description == NoDescription || r.MediaURL == NoMediaURL
}

// Advance moves the record to the given status, clearing
// any failure reason left over from a previous attempt.
func (r *Record) Advance(s Status) {
	r.Status = s
	r.FailureReason = ""
}

// Promote advances the record to the given status unless it has already
// progressed beyond it. Failed records are always promoted.
func (r *Record) Promote(s Status) {
	if r.Status == FAILED || r.Status < s {
		r.Advance(s)
	}
}

// Fail marks the record as FAILED with the reason provided.
func (r *Record) Fail(reason string) {
	r.Status = FAILED
	r.FailureReason = reason
}

// InferStatus derives a status for records persisted without one,
// using the optional fields that later stages populate.
func InferStatus(r *Record) Status {
	switch {
	case r.FailureReason != "":
		return FAILED
	case r.ScheduleAt != nil:
		return SCHEDULED
	case r.ThumbnailPath != "":
		return RENDERED
	case r.Provenance != "":
		return TRANSFORMED
	default:
		return FETCHED
	}
}

func (r Record) String() string {
	return fmt.Sprintf("Record{label=%d status=%s title=%q}", r.Label, r.Status, r.Title)
}
