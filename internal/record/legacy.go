package record

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hbomb79/mediabatch/pkg/logger"
	"github.com/mitchellh/mapstructure"
)

// LegacyScheduleLayout is the layout used by schedule dates in record
// files produced by the older per-script tooling.
const LegacyScheduleLayout = "2006-01-02 15:04:05"

type legacyRecord struct {
	Label       int      `mapstructure:"Label"`
	Identifier  string   `mapstructure:"Identifier"`
	URL         string   `mapstructure:"URL"`
	Title       string   `mapstructure:"Title"`
	Description string   `mapstructure:"Description"`
	Tags        []string `mapstructure:"Tags"`
	VideoURL    string   `mapstructure:"Video URL"`
	Schedule    string   `mapstructure:"schedule"`
}

// ReadLegacy decodes a record file written by the older tooling, which used
// capitalised keys ("Label", "Video URL", ...), loosely typed values
// (labels as strings, tags as a comma separated string) and a local
// schedule format. Entries without a usable label are skipped.
func ReadLegacy(path string) ([]Record, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy records '%s': %w", path, err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("legacy records '%s' are malformed: %w", path, err)
	}

	out := make([]Record, 0, len(raw))
	for i, entry := range raw {
		var legacy legacyRecord
		if err := mapstructure.WeakDecode(entry, &legacy); err != nil {
			log.Emit(logger.WARNING, "Skipping legacy entry #%d: %v\n", i, err)
			continue
		}
		if legacy.Label < 1 {
			log.Emit(logger.WARNING, "Skipping legacy entry #%d: no label\n", i)
			continue
		}

		out = append(out, legacy.toRecord())
	}

	return out, nil
}

func (legacy *legacyRecord) toRecord() Record {
	rec := Record{
		Label:           legacy.Label,
		SourceReference: legacy.URL,
		Identifier:      legacy.Identifier,
		Title:           legacy.Title,
		Description:     legacy.Description,
		Tags:            splitLegacyTags(legacy.Tags),
		MediaURL:        legacy.VideoURL,
	}
	if rec.SourceReference == "" {
		rec.SourceReference = legacy.Identifier
	}
	if rec.Title == "" {
		rec.Title = NoTitle
	}

	if legacy.Schedule != "" {
		if at, err := time.ParseInLocation(LegacyScheduleLayout, legacy.Schedule, time.Local); err == nil {
			rec.ScheduleAt = &at
		} else {
			log.Emit(logger.WARNING, "Legacy record %d has unparseable schedule %q\n", legacy.Label, legacy.Schedule)
		}
	}

	rec.Status = InferStatus(&rec)
	return rec
}

func splitLegacyTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		for _, part := range strings.Split(tag, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}

	return out
}

// Import appends the records provided to the store, skipping any whose
// label is already present. The number of records imported is returned.
func (store *Store) Import(records []Record) int {
	imported := 0
	for _, rec := range records {
		if err := store.Append(rec); err != nil {
			log.Emit(logger.WARNING, "Not importing record %d: %v\n", rec.Label, err)
			continue
		}

		imported++
	}

	return imported
}
