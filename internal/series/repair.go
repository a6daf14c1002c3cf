package series

import (
	"encoding/json"
	"fmt"
	"os"

	"btc-advisor/internal/fsutil"
)

// RepairResult describes what FixFile did.
type RepairResult struct {
	Steps   []string
	Dropped int
	Kept    int
	Backup  string
}

// Changed reports whether the file was rewritten.
func (r RepairResult) Changed() bool {
	return r.Backup != ""
}

// FixFile normalizes a data document in place. Items are kept verbatim, so
// it works for any dated document (series caches, daily_data.json). When the
// document changed the original is kept as path + ".bak" and the repaired
// list is written in its place.
func FixFile(path string) (RepairResult, error) {
	var res RepairResult

	raw, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}

	unwrapped, err := Unwrap(raw)
	if err != nil {
		return res, err
	}
	res.Steps = unwrapped.Steps

	kept := make([]json.RawMessage, 0, len(unwrapped.Items))
	for _, item := range unwrapped.Items {
		var dated struct {
			Date string `json:"date"`
		}
		if !DecodeDated(item, &dated, func() string { return dated.Date }) {
			res.Dropped++
			continue
		}
		kept = append(kept, item)
	}
	res.Kept = len(kept)

	if len(res.Steps) == 0 && res.Dropped == 0 {
		return res, nil
	}

	backup := path + ".bak"
	if err := os.WriteFile(backup, raw, 0o644); err != nil {
		return res, fmt.Errorf("write backup: %w", err)
	}
	res.Backup = backup

	if err := fsutil.WriteJSONAtomic(path, kept); err != nil {
		return res, err
	}
	return res, nil
}
