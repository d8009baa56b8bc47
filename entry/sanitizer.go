package entry

import (
	"sync"

	"github.com/goliatone/go-masker"
	"github.com/goliatone/go-oplog/pkg/types"
)

// SanitizerConfig controls the masker used for snapshot sanitization.
type SanitizerConfig struct {
	Masker *masker.Masker
}

var defaultMaskerOnce sync.Once

// DefaultMasker returns a configured masker instance with the default denylist.
func DefaultMasker() *masker.Masker {
	defaultMaskerOnce.Do(func() {
		if masker.Default == nil {
			return
		}
		registerDefaultMaskFields(masker.Default)
	})
	return masker.Default
}

// SanitizeRecord masks sensitive values in both snapshots of a record before
// it reaches the log table.
func SanitizeRecord(mask *masker.Masker, record types.OperationRecord) types.OperationRecord {
	record.DataBefore = sanitizeSnapshot(mask, record.DataBefore)
	record.DataAfter = sanitizeSnapshot(mask, record.DataAfter)
	return record
}

// SanitizeRecords masks sensitive values for every record in the slice.
func SanitizeRecords(mask *masker.Masker, records []types.OperationRecord) []types.OperationRecord {
	if len(records) == 0 {
		return records
	}
	out := make([]types.OperationRecord, 0, len(records))
	for _, record := range records {
		out = append(out, SanitizeRecord(mask, record))
	}
	return out
}

func sanitizeSnapshot(mask *masker.Masker, snap types.Snapshot) types.Snapshot {
	if len(snap) == 0 {
		return snap
	}
	if mask == nil {
		mask = DefaultMasker()
	}
	if mask == nil {
		return types.Snapshot{}
	}

	masked, err := mask.Mask(map[string]any(snap.Clone()))
	if err != nil {
		return types.Snapshot{}
	}
	switch masked := masked.(type) {
	case map[string]any:
		return types.Snapshot(masked)
	default:
		return types.Snapshot{}
	}
}

func registerDefaultMaskFields(mask *masker.Masker) {
	if mask == nil {
		return
	}
	mask.RegisterMaskField("password", "filled4")
	mask.RegisterMaskField("Password", "filled4")
	mask.RegisterMaskField("secret", "filled4")
	mask.RegisterMaskField("Secret", "filled4")
	mask.RegisterMaskField("token", "filled4")
	mask.RegisterMaskField("Token", "filled4")
}
