// Package diff computes the set of business fields that actually changed
// between two entity states, excluding technical bookkeeping fields.
package diff

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/goliatone/go-oplog/pkg/types"
)

// technicalKeys are store bookkeeping fields that never count as business
// changes and never appear in persisted snapshots.
var technicalKeys = map[string]struct{}{
	"id":            {},
	"documentId":    {},
	"createdAt":     {},
	"updatedAt":     {},
	"publishedAt":   {},
	"createdBy":     {},
	"updatedBy":     {},
	"locale":        {},
	"localizations": {},
	"__v":           {},
	"__temp_key__":  {},
	"__component":   {},
	"__pivot":       {},
	"_id":           {},
}

// IsTechnicalKey reports whether the field is store bookkeeping.
func IsTechnicalKey(key string) bool {
	_, ok := technicalKeys[key]
	return ok
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		json.Number:
		return true
	default:
		return false
	}
}

// PickScalars extracts the business scalar state of a row: primitive values
// only, technical keys removed. Relations and nested objects are dropped.
func PickScalars(row types.Row) types.Snapshot {
	out := types.Snapshot{}
	for k, v := range row {
		if IsTechnicalKey(k) {
			continue
		}
		if isPrimitive(v) {
			out[k] = v
		}
	}
	return out
}

func isTimestamp(v any) bool {
	switch v.(type) {
	case time.Time, *time.Time:
		return true
	default:
		return false
	}
}

// PickPrimitives extracts every primitive value of a row, technical keys
// included. Used for pre-operation stashes where publishedAt and friends are
// still needed by the classifier. Timestamps are kept: stores hand publishedAt
// back as time.Time, and dropping it would hide publish transitions from the
// stash.
func PickPrimitives(row types.Row) types.Snapshot {
	out := types.Snapshot{}
	for k, v := range row {
		if isPrimitive(v) || isTimestamp(v) {
			out[k] = v
		}
	}
	return out
}

// Pick returns the subset of snap holding only the requested keys.
func Pick(snap types.Snapshot, keys []string) types.Snapshot {
	out := types.Snapshot{}
	for _, k := range keys {
		if v, ok := snap[k]; ok {
			out[k] = v
		}
	}
	return out
}

// ChangedFields returns the sorted set of business keys whose values differ
// between before and after. The candidate set is the union of the raw payload
// keys and the keys of both snapshots, so fields submitted-but-unchanged are
// still considered and server-computed fields absent from the payload are
// still caught.
func ChangedFields(before, after types.Snapshot, payload types.Row) []string {
	candidates := make(map[string]struct{}, len(before)+len(after)+len(payload))
	for k := range payload {
		candidates[k] = struct{}{}
	}
	for k := range before {
		candidates[k] = struct{}{}
	}
	for k := range after {
		candidates[k] = struct{}{}
	}

	var changed []string
	for k := range candidates {
		if IsTechnicalKey(k) {
			continue
		}
		if !canonicalEqual(before[k], after[k]) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// BusinessKeys returns the sorted non-technical keys of the snapshot. Used
// for first publishes, where there is nothing meaningful to diff against an
// empty baseline.
func BusinessKeys(snap types.Snapshot) []string {
	keys := make([]string, 0, len(snap))
	for k := range snap {
		if IsTechnicalKey(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// canonicalEqual compares two values structurally via canonical JSON
// serialization, so 1 and 1.0 coming back from different drivers compare
// equal and map ordering is irrelevant.
func canonicalEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	ab, aerr := json.Marshal(normalizeNumber(a))
	bb, berr := json.Marshal(normalizeNumber(b))
	if aerr != nil || berr != nil {
		return aerr == nil && berr == nil
	}
	return string(ab) == string(bb)
}

func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}
