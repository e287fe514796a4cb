package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/hbomb79/mediabatch/internal/record"
)

type (
	// Source retrieves the metadata and media location for a single
	// external reference (a URL or archive identifier).
	Source interface {
		Fetch(ctx context.Context, reference string) (*Item, error)
	}

	// Item is the result of a successful fetch. Fields the source could
	// not find are set to the record sentinels rather than left empty.
	Item struct {
		Reference   string
		Identifier  string
		Title       string
		Description string
		Tags        []string
		MediaURL    string
	}

	taskState int
	task      struct {
		index     int
		reference string
		state     taskState
		result    chan Result
	}

	// Result is the outcome of fetching one reference. Exactly one of
	// Item or Err is set.
	Result struct {
		Index     int
		Reference string
		Item      *Item
		Attempts  int
		Err       error
	}
)

const (
	IDLE taskState = iota
	FETCHING
	COMPLETE
	FAILED
)

// fillSentinels replaces any missing fields with the record sentinels
// so that downstream stages can detect partial fetches.
func (item *Item) fillSentinels() {
	item.Title = strings.TrimSpace(item.Title)
	item.Description = strings.TrimSpace(item.Description)

	if item.Title == "" {
		item.Title = record.NoTitle
	}
	if item.Description == "" {
		item.Description = record.NoDescription
	}
	if item.MediaURL == "" {
		item.MediaURL = record.NoMediaURL
	}
	if item.Tags == nil {
		item.Tags = make([]string, 0)
	}
}

// Record converts the item in to a FETCHED record with the label provided.
func (item *Item) Record(label int) record.Record {
	tags := make([]string, len(item.Tags))
	copy(tags, item.Tags)

	return record.Record{
		Label:           label,
		SourceReference: item.Reference,
		Identifier:      item.Identifier,
		Title:           item.Title,
		Description:     item.Description,
		Tags:            tags,
		MediaURL:        item.MediaURL,
		Status:          record.FETCHED,
	}
}

func (item *Item) String() string {
	return fmt.Sprintf("Item{ref=%s title=%q}", item.Reference, item.Title)
}

func (s taskState) String() string {
	switch s {
	case IDLE:
		return fmt.Sprintf("IDLE[%d]", s)
	case FETCHING:
		return fmt.Sprintf("FETCHING[%d]", s)
	case COMPLETE:
		return fmt.Sprintf("COMPLETE[%d]", s)
	case FAILED:
		return fmt.Sprintf("FAILED[%d]", s)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", s)
	}
}
