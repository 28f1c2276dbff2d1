package polling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffReportsChangedAndNewIDs(t *testing.T) {
	prev := Snapshot{"A": 2, "B": 5}
	next := Snapshot{"A": 2, "B": 6, "C": 1}

	require.Equal(t, []string{"B", "C"}, Diff(prev, next))
}

func TestDiffIgnoresDisappearedIDs(t *testing.T) {
	require.Empty(t, Diff(Snapshot{"A": 1, "gone": 3}, Snapshot{"A": 1}))
}

func TestDiffComparesAcrossNumericTypes(t *testing.T) {
	prev := Snapshot{"A": int64(3), "B": 2.0, "C": "7"}
	next := Snapshot{"A": 3, "B": int32(2), "C": []byte("7")}

	require.Empty(t, Diff(prev, next))
}

func TestDiffAgainstEmptyPrevious(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, Diff(Snapshot{}, Snapshot{"b": 1, "a": 1}))
	require.Equal(t, []string{"a"}, Diff(nil, Snapshot{"a": 0}))
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	orig := Snapshot{"A": 1}
	clone := orig.Clone()
	clone["A"] = 2

	require.Equal(t, 1, orig["A"])
	require.Nil(t, Snapshot(nil).Clone())
}

func TestDiffKeepsLargeUnsignedCountsDistinct(t *testing.T) {
	huge := uint64(math.MaxInt64) + 1
	require.Equal(t, huge, normalizeCount(huge))
	require.Equal(t, int64(7), normalizeCount(uint64(7)))

	prev := Snapshot{"A": int64(math.MinInt64)}
	next := Snapshot{"A": huge}
	require.Equal(t, []string{"A"}, Diff(prev, next))
	require.Empty(t, Diff(Snapshot{"A": huge}, Snapshot{"A": huge}))
}
