package bigquery

import (
	"testing"

	"github.com/rhoekstra/pattern-engine/internal/engine"
)

func TestMergeExprsPerMode(t *testing.T) {
	occ, seen := mergeExprs(engine.MergeReplace)
	if occ != "S.occurrences" {
		t.Errorf("replace occurrences expr = %q, want the incoming count", occ)
	}
	if seen != "S.last_seen" {
		t.Errorf("replace last_seen expr = %q, want the incoming date so a corrective re-analysis can rewind it", seen)
	}

	occ, seen = mergeExprs(engine.MergeAdditive)
	if occ != "T.occurrences + S.occurrences" {
		t.Errorf("additive occurrences expr = %q, want accumulation", occ)
	}
	if seen != "GREATEST(T.last_seen, S.last_seen)" {
		t.Errorf("additive last_seen expr = %q, want the later sighting", seen)
	}
}
