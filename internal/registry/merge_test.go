package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshrotenberg/skillet/internal/testutil"
)

func TestMerge_FirstSourceWins(t *testing.T) {
	rootA, storeA := testutil.TestRegistry(t)
	testutil.WriteSkill(t, rootA, "acme", "foo", testutil.Skill{Description: "from A", Categories: []string{"a"}})

	rootB, storeB := testutil.TestRegistry(t)
	testutil.WriteSkill(t, rootB, "acme", "foo", testutil.Skill{Description: "from B", Version: "9.9.9", Categories: []string{"b"}})
	testutil.WriteVersions(t, rootB, "acme", "foo",
		testutil.Version{Version: "1.0.0"},
		testutil.Version{Version: "9.9.9"},
	)
	testutil.WriteSkill(t, rootB, "acme", "bar", testutil.Skill{Categories: []string{"b"}})

	a := load(t, storeA, Options{SourceID: "A"})
	b := load(t, storeB, Options{SourceID: "B"})

	merged, conflicts := Merge(a.Index, b.Index)
	require.Len(t, merged.Skills, 2)

	foo, err := merged.Get("acme", "foo")
	require.NoError(t, err)
	assert.Equal(t, "A", foo.Source)
	require.Len(t, foo.Versions, 1)
	assert.Equal(t, "from A", foo.Versions[0].Metadata.Skill.Description)

	aFoo, _ := a.Index.Get("acme", "foo")
	assert.Equal(t, aFoo.Versions, foo.Versions)

	require.Len(t, conflicts, 1)
	assert.Equal(t, "acme/foo", conflicts[0].Key.String())
	assert.Equal(t, "A", conflicts[0].Winner)
	assert.Equal(t, "B", conflicts[0].Loser)

	// Counts are recomputed, not summed: B's foo is discarded so "b" counts only bar.
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, merged.Categories)
}

func TestMerge_SameSourceTwiceIsIdempotent(t *testing.T) {
	root, store := testutil.TestRegistry(t)
	testutil.WriteSkill(t, root, "acme", "one", testutil.Skill{Categories: []string{"x"}})
	testutil.WriteSkill(t, root, "acme", "two", testutil.Skill{Categories: []string{"x", "y"}})
	idx := load(t, store, Options{SourceID: "S"}).Index

	once, _ := Merge(idx)
	twice, _ := Merge(idx, idx)

	assert.Equal(t, once.Keys(), twice.Keys())
	assert.Equal(t, once.Categories, twice.Categories)
	for _, k := range once.Keys() {
		assert.Equal(t, once.Skills[k], twice.Skills[k])
	}
}

func TestMerge_NilAndEmpty(t *testing.T) {
	merged, conflicts := Merge(nil)
	assert.Empty(t, merged.Skills)
	assert.Empty(t, merged.Categories)
	assert.Empty(t, conflicts)
}
