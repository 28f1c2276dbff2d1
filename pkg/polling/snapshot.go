package polling

import (
	"context"
	"fmt"
	"math"
	"sort"

	"chatpoll/pkg/config"
	"chatpoll/pkg/query"
)

// Snapshot maps conversation ids to their message counts.
type Snapshot map[string]any

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}

	out := make(Snapshot, len(s))
	for id, count := range s {
		out[id] = count
	}
	return out
}

// FetchSnapshot reads the count table described by cfg. Rows without a
// usable conversation id are skipped. Any failure wraps
// ErrSnapshotUnavailable.
func FetchSnapshot(ctx context.Context, exec query.Executor, cfg config.PollingConfig) (Snapshot, error) {
	res, err := exec.Execute(ctx, query.Select{
		Table:   cfg.Table,
		Columns: []string{cfg.ChatIDCol, cfg.CountCol},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}
	if res == nil {
		return nil, ErrSnapshotUnavailable
	}

	chats := make(Snapshot, len(res.Rows))
	for _, row := range res.Rows {
		id, ok := conversationID(row[cfg.ChatIDCol])
		if !ok {
			continue
		}
		chats[id] = normalizeCount(row[cfg.CountCol])
	}

	return chats, nil
}

// Diff returns, sorted, the ids of next whose count differs from prev.
// Ids missing from prev count as changed; ids missing from next are ignored.
func Diff(prev, next Snapshot) []string {
	changed := make([]string, 0)
	for id, count := range next {
		before, ok := prev[id]
		if !ok || !sameCount(before, count) {
			changed = append(changed, id)
		}
	}

	sort.Strings(changed)
	return changed
}

func sameCount(a, b any) bool {
	return normalizeCount(a) == normalizeCount(b)
}

// normalizeCount folds the numeric types drivers hand back into one
// comparable representation.
func normalizeCount(value any) any {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case int64:
		return typed
	case uint:
		return normalizeUnsigned(uint64(typed))
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint64:
		return normalizeUnsigned(typed)
	case float32:
		return normalizeFloat(float64(typed))
	case float64:
		return normalizeFloat(typed)
	case []byte:
		return string(typed)
	case nil, string, bool:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

// normalizeUnsigned keeps counts beyond the int64 range as uint64 so they
// cannot collide with a negative int64.
func normalizeUnsigned(u uint64) any {
	if u > math.MaxInt64 {
		return u
	}
	return int64(u)
}

func normalizeFloat(f float64) any {
	if f == float64(int64(f)) {
		return int64(f)
	}
	return f
}

func conversationID(value any) (string, bool) {
	switch typed := value.(type) {
	case nil:
		return "", false
	case string:
		return typed, typed != ""
	case []byte:
		return string(typed), len(typed) > 0
	default:
		return fmt.Sprint(typed), true
	}
}
