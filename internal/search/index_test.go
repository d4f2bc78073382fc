package search

import (
	"reflect"
	"testing"
)

// ---------- Options + defaultConfig ----------
func TestOptionsAndDefaults(t *testing.T) {
	def := defaultConfig()
	if def.minPassageRunes != 1 || def.passageSentences != 3 || def.maxDocs != 0 || def.stopwords == nil {
		t.Fatalf("defaultConfig unexpected: %#v", def)
	}

	cfg := def
	WithMinPassageRunes(10)(&cfg)
	WithMinPassageRunes(-5)(&cfg) // no-op
	if cfg.minPassageRunes != 10 {
		t.Fatalf("WithMinPassageRunes failed: %d", cfg.minPassageRunes)
	}

	WithPassageSentences(2)(&cfg)
	WithPassageSentences(0)(&cfg) // no-op
	if cfg.passageSentences != 2 {
		t.Fatalf("WithPassageSentences failed: %d", cfg.passageSentences)
	}

	WithStopwords([]string{"  The ", "", "An"})(&cfg)
	if _, ok := cfg.stopwords["an"]; !ok || len(cfg.stopwords) != 2 {
		t.Fatalf("WithStopwords failed: %#v", cfg.stopwords)
	}
	WithStopwords(nil)(&cfg)
	if cfg.stopwords != nil {
		t.Fatalf("empty stopwords should disable removal")
	}

	WithMaxDocs(2)(&cfg)
	WithMaxDocs(0)(&cfg) // no-op
	if cfg.maxDocs != 2 {
		t.Fatalf("WithMaxDocs failed: %d", cfg.maxDocs)
	}
}

func TestBuildIndex_SkipsEmptyAndCaps(t *testing.T) {
	docs := []Document{
		{ID: "empty", Text: "   "},
		{ID: "stop", Text: "the and a"},
		{ID: "d1", Text: "Budget review. Hiring plan."},
		{ID: "d2", Text: "Quarterly roadmap."},
	}
	ix := NewIndex(docs).(*index)
	if len(ix.docs) != 2 || ix.docs[0].ID != "d1" {
		t.Fatalf("unexpected docs: %+v", ix.docs)
	}

	capped := NewIndex(docs, WithMaxDocs(1)).(*index)
	if len(capped.docs) != 1 || capped.docs[0].ID != "d1" {
		t.Fatalf("maxDocs cap failed: %+v", capped.docs)
	}
}

func TestTopK_BestPassagePerDocument(t *testing.T) {
	ix := NewIndex([]Document{
		{ID: "a", Title: "Standup", Text: "We discussed the budget. Then lunch. Weather was nice. Budget approved for hiring."},
		{ID: "b", Title: "Retro", Text: "Hiring is paused."},
		{ID: "c", Title: "Other", Text: "Nothing relevant here."},
	}, WithPassageSentences(1))

	got := ix.TopK("budget hiring", 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 documents, got %#v", got)
	}
	if got[0].DocID != "a" || got[0].Snippet != "Budget approved for hiring." || got[0].Title != "Standup" {
		t.Fatalf("unexpected top result: %#v", got[0])
	}
	if got[1].DocID != "b" {
		t.Fatalf("unexpected second result: %#v", got[1])
	}
	if got[0].Score <= got[1].Score {
		t.Fatalf("expected descending scores: %#v", got)
	}
}

func TestTopK_EdgeCasesAndTies(t *testing.T) {
	empty := NewIndex(nil)
	if res := empty.TopK("x", 3); res != nil {
		t.Fatalf("empty index should return nil")
	}

	ix := NewIndex([]Document{
		{ID: "z", Text: "alpha beta"},
		{ID: "y", Text: "beta alpha"},
		{ID: "x", Text: "alpha beta gamma"},
		{ID: "w", Text: "delta epsilon"},
	})
	if out := ix.TopK("   ", 2); out != nil {
		t.Fatalf("blank query should return nil")
	}
	if out := ix.TopK("the of", 2); out != nil {
		t.Fatalf("stop-word-only query should return nil")
	}
	if out := ix.TopK("omega", 2); out != nil {
		t.Fatalf("no overlap should return nil")
	}

	got := ix.TopK("alpha beta", 0)
	ids := []string{got[0].DocID, got[1].DocID, got[2].DocID}
	if !reflect.DeepEqual(ids, []string{"y", "z", "x"}) {
		t.Fatalf("unexpected order: %v", ids)
	}

	if got := ix.TopK("alpha", 1); len(got) != 1 {
		t.Fatalf("k should cap results, got %d", len(got))
	}
}

func TestHelpers(t *testing.T) {
	toks := tokenize("Hello HELLO 123 world", nil)
	if _, ok := toks["hello"]; !ok || len(toks) != 2 {
		t.Fatalf("tokenize unexpected: %#v", toks)
	}
	if tokenize("$$$ !!!", nil) != nil {
		t.Fatalf("tokenize should return nil when no words")
	}

	if overlap(map[string]struct{}{"a": {}, "b": {}}, map[string]struct{}{"b": {}}) != 1 {
		t.Fatalf("overlap failed")
	}
	if overlap(nil, map[string]struct{}{"a": {}}) != 0 {
		t.Fatalf("overlap with empty set should be 0")
	}

	if got := normalizeWhitespace("a \t\n\r  b"); got != "a b" {
		t.Fatalf("normalizeWhitespace: %q", got)
	}

	got := splitPassages("One. Two! Three? Four", 2)
	if !reflect.DeepEqual(got, []string{"One. Two!", "Three? Four"}) {
		t.Fatalf("splitPassages: %#v", got)
	}
	if got := splitPassages("No punctuation at all", 3); len(got) != 1 {
		t.Fatalf("single sentence expected, got %#v", got)
	}
}
