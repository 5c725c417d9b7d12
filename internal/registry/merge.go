package registry

import (
	"github.com/joshrotenberg/skillet/internal/models"
)

// Conflict records a key defined by more than one source. The winner is the
// earlier source; the loser's entry is discarded whole.
type Conflict struct {
	Key    models.Key
	Winner string
	Loser  string
}

// Merge combines indices in the given order. For each key the first index
// that defines it wins outright, including its full version history.
// Category counts are recomputed from the merged entries. Merge is not
// commutative: local registries are conventionally passed before remotes.
func Merge(indices ...*models.SkillIndex) (*models.SkillIndex, []Conflict) {
	merged := models.NewSkillIndex()
	var conflicts []Conflict
	for _, idx := range indices {
		if idx == nil {
			continue
		}
		for _, key := range idx.Keys() {
			entry := idx.Skills[key]
			if existing, ok := merged.Skills[key]; ok {
				conflicts = append(conflicts, Conflict{Key: key, Winner: existing.Source, Loser: entry.Source})
				continue
			}
			merged.Skills[key] = entry
		}
	}
	merged.RecountCategories()
	return merged, conflicts
}
