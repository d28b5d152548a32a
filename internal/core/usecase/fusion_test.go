package usecase

import (
	"math"
	"testing"

	"github.com/agromitra/citrus-advisor/internal/core/domain"
)

func hit(id, text string) domain.RetrievalHit {
	return domain.RetrievalHit{Chunk: domain.DocumentChunk{ID: id, Text: text}}
}

func TestFuseRRFAccumulatesAcrossLists(t *testing.T) {
	semantic := []domain.RetrievalHit{hit("c1", "one"), hit("c2", "two")}
	keyword := []domain.RetrievalHit{hit("c2", "two"), hit("c3", "three")}

	fused := fuseRRF([][]domain.RetrievalHit{semantic, keyword}, 60)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused hits, got %d", len(fused))
	}
	if fused[0].Chunk.ID != "c2" {
		t.Fatalf("expected c2 first after fusion, got %s", fused[0].Chunk.ID)
	}

	// c2 sits at rank 2 in the semantic list and rank 1 in the keyword list.
	want := 1.0/62.0 + 1.0/61.0
	if math.Abs(fused[0].FusedScore-want) > 1e-12 {
		t.Fatalf("expected fused score %v, got %v", want, fused[0].FusedScore)
	}
}

func TestFuseRRFDeduplicatesWithinList(t *testing.T) {
	list := []domain.RetrievalHit{hit("c1", "one"), hit("c1", "one again"), hit("c2", "two")}

	fused := fuseRRF([][]domain.RetrievalHit{list}, 60)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused hits, got %d", len(fused))
	}
	// The duplicate must not consume a rank: c2 contributes 1/(60+2).
	want := 1.0 / 62.0
	if math.Abs(fused[1].FusedScore-want) > 1e-12 {
		t.Fatalf("expected c2 score %v, got %v", want, fused[1].FusedScore)
	}
}

func TestFuseRRFSkipsEmptyChunkIDs(t *testing.T) {
	list := []domain.RetrievalHit{hit("", "anonymous"), hit("c1", "one")}

	fused := fuseRRF([][]domain.RetrievalHit{list}, 60)
	if len(fused) != 1 {
		t.Fatalf("expected 1 fused hit, got %d", len(fused))
	}
	if fused[0].Chunk.ID != "c1" {
		t.Fatalf("expected c1, got %s", fused[0].Chunk.ID)
	}
	want := 1.0 / 61.0
	if math.Abs(fused[0].FusedScore-want) > 1e-12 {
		t.Fatalf("expected rank 1 score %v, got %v", want, fused[0].FusedScore)
	}
}

func TestFuseRRFTieBreaksByFirstSeenRankThenID(t *testing.T) {
	// c-b is seen at rank 1, c-a at rank 2 in a different list. Scores are
	// equal, so the earlier first-seen rank wins.
	listA := []domain.RetrievalHit{hit("c-b", "b")}
	listB := []domain.RetrievalHit{hit("x", "x"), hit("c-a", "a")}
	listC := []domain.RetrievalHit{hit("z", "z"), hit("c-b", "b")}
	listD := []domain.RetrievalHit{hit("c-a", "a")}

	fused := fuseRRF([][]domain.RetrievalHit{listA, listB, listC, listD}, 60)
	order := map[string]int{}
	for _, f := range fused {
		order[f.Chunk.ID] = f.Rank
	}
	if order["c-b"] >= order["c-a"] {
		t.Fatalf("expected c-b (first seen at rank 1) before c-a, got ranks %d and %d", order["c-b"], order["c-a"])
	}

	// Identical rank pattern falls back to the chunk id.
	fused = fuseRRF([][]domain.RetrievalHit{
		{hit("c-b", "b")},
		{hit("c-a", "a")},
	}, 60)
	if fused[0].Chunk.ID != "c-a" {
		t.Fatalf("expected id tie-break to pick c-a first, got %s", fused[0].Chunk.ID)
	}
}

func TestFuseRRFAssignsSequentialRanks(t *testing.T) {
	fused := fuseRRF([][]domain.RetrievalHit{
		{hit("c1", "one"), hit("c2", "two"), hit("c3", "three")},
	}, 60)
	for i, f := range fused {
		if f.Rank != i+1 {
			t.Fatalf("expected rank %d at position %d, got %d", i+1, i, f.Rank)
		}
	}
}

func TestFuseRRFDeterministicAcrossRuns(t *testing.T) {
	lists := [][]domain.RetrievalHit{
		{hit("c3", "three"), hit("c1", "one"), hit("c4", "four")},
		{hit("c1", "one"), hit("c2", "two"), hit("c3", "three")},
	}

	first := fuseRRF(lists, 60)
	for i := 0; i < 50; i++ {
		again := fuseRRF(lists, 60)
		if len(again) != len(first) {
			t.Fatalf("run %d: expected %d hits, got %d", i, len(first), len(again))
		}
		for j := range first {
			if again[j].Chunk.ID != first[j].Chunk.ID {
				t.Fatalf("run %d: order diverged at position %d: %s vs %s", i, j, again[j].Chunk.ID, first[j].Chunk.ID)
			}
		}
	}
}

func TestNamespaceListsKeepsSemanticBeforeKeyword(t *testing.T) {
	results := []domain.NamespaceResult{
		{
			Namespace: domain.NamespaceDisease,
			Semantic:  []domain.RetrievalHit{hit("s1", "s")},
			Keyword:   []domain.RetrievalHit{hit("k1", "k")},
		},
		{
			Namespace: domain.NamespaceScheme,
			Keyword:   []domain.RetrievalHit{hit("k2", "k")},
		},
	}

	lists := namespaceLists(results)
	if len(lists) != 3 {
		t.Fatalf("expected 3 non-empty lists, got %d", len(lists))
	}
	if lists[0][0].Chunk.ID != "s1" || lists[1][0].Chunk.ID != "k1" || lists[2][0].Chunk.ID != "k2" {
		t.Fatalf("unexpected list order: %s %s %s", lists[0][0].Chunk.ID, lists[1][0].Chunk.ID, lists[2][0].Chunk.ID)
	}
}
