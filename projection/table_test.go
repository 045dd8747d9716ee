package projection

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/youwol/ywdash/message"
)

type pkgRow struct {
	Name   string
	Source string
}

func packageTable() Table[pkgRow] {
	return NewDedupTable(
		func(r pkgRow) string { return message.PackageID(r.Name) },
		func(a, b pkgRow) int { return CompareFold(a.Name, b.Name) },
	)
}

func TestDedupTable_FirstLayerWins(t *testing.T) {
	snapshot := []pkgRow{{"P", "snapshot"}, {"zeta", "snapshot"}}
	downloaded := []pkgRow{{"P", "downloaded"}, {"Alpha", "downloaded"}}
	events := []pkgRow{{"P", "event"}, {"beta", "event"}, {"alpha", "event"}}

	got := packageTable().Merge(snapshot, downloaded, events)
	want := []pkgRow{
		{"Alpha", "downloaded"},
		{"alpha", "event"},
		{"beta", "event"},
		{"P", "snapshot"},
		{"zeta", "snapshot"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupTable_DoesNotModifyInputs(t *testing.T) {
	layer := []pkgRow{{"b", "x"}, {"a", "x"}}
	_ = packageTable().Merge(layer)
	assert.Equal(t, "b", layer[0].Name)
	assert.Equal(t, Dedup, packageTable().Policy())
}

func TestAppendOnlyTable_PriorityOrder(t *testing.T) {
	table := NewAppendOnlyTable(CompareUpdateRows)

	first := []message.UpdateStatusRow{
		{PackageName: "a", Status: message.UpdateUpToDate},
		{PackageName: "b", Status: message.UpdateMismatch},
	}
	second := []message.UpdateStatusRow{
		{PackageName: "c", Status: message.UpdateRemoteAhead},
		{PackageName: "a", Status: message.UpdateLocalAhead},
		{PackageName: "d", Status: message.UpdateUpToDate},
	}

	got := table.Merge(first, second)
	var names []string
	for _, r := range got {
		names = append(names, r.PackageName+":"+string(r.Status))
	}
	assert.Equal(t, []string{
		"c:remoteAhead",
		"a:localAhead",
		"b:mismatch",
		"a:upToDate",
		"d:upToDate",
	}, names)
	assert.Equal(t, AppendOnly, table.Policy())
}

func TestUpdatePriority(t *testing.T) {
	assert.Less(t, UpdatePriority(message.UpdateRemoteAhead), UpdatePriority(message.UpdateLocalAhead))
	assert.Less(t, UpdatePriority(message.UpdateLocalAhead), UpdatePriority(message.UpdateMismatch))
	assert.Less(t, UpdatePriority(message.UpdateMismatch), UpdatePriority(message.UpdateUpToDate))
	assert.Less(t, UpdatePriority(message.UpdateUpToDate), UpdatePriority(message.UpdatePending))
}

func TestCompareFold(t *testing.T) {
	assert.Negative(t, CompareFold("apple", "Banana"))
	assert.Positive(t, CompareFold("b", "A"))
	assert.Zero(t, CompareFold("x", "x"))
	assert.NotZero(t, CompareFold("a", "A"))
}
