package label

import (
	"fmt"
	"os"
	"strings"

	"github.com/hbomb79/mediabatch/pkg/logger"
)

// Missing returns the labels within [start, end] which have no
// corresponding '{label}.{ext}' file in the directory.
func Missing(dir string, ext string, start int, end int) ([]int, error) {
	if end < start {
		return nil, fmt.Errorf("label range end %d is before start %d", end, start)
	}

	existing, err := Existing(dir, ext)
	if err != nil {
		return nil, err
	}

	present := make(map[int]bool, len(existing))
	for _, v := range existing {
		present[v] = true
	}

	missing := make([]int, 0)
	for v := start; v <= end; v++ {
		if !present[v] {
			missing = append(missing, v)
		}
	}

	return missing, nil
}

// WriteMissingLog writes one '{label}.{ext}' line per missing label.
func WriteMissingLog(path string, ext string, missing []int) error {
	var sb strings.Builder
	for _, v := range missing {
		fmt.Fprintf(&sb, "%d.%s\n", v, ext)
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write missing file log: %w", err)
	}

	log.Emit(logger.INFO, "Wrote %d missing labels to %s\n", len(missing), path)
	return nil
}
