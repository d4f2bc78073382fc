// Package search provides a deterministic, concurrency-safe in-memory index
// over transcripts. Each transcript is split into passages of a few
// sentences; a query returns the best passage per transcript.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options for passage sizing and stop words
//   - Immutable after construction (safe for concurrent use)
//   - Deterministic ordering for ties
//
// Scoring uses Jaccard similarity between the query token set and each
// passage's token set: score = |Q ∩ P| / |Q ∪ P|.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Document is one searchable transcript.
type Document struct {
	ID    string
	Title string
	Text  string
}

// Result is the best passage of one document with its similarity score.
type Result struct {
	DocID   string
	Title   string
	Snippet string
	Score   float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minPassageRunes  int
	passageSentences int
	stopwords        map[string]struct{}
	maxDocs          int
}

func defaultConfig() config {
	return config{
		minPassageRunes:  1,
		passageSentences: 3,
		stopwords:        defaultStopwords,
		maxDocs:          0,
	}
}

// WithMinPassageRunes drops passages shorter than n runes.
func WithMinPassageRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minPassageRunes = n
		}
	}
}

// WithPassageSentences sets how many sentences form one passage.
func WithPassageSentences(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.passageSentences = n
		}
	}
}

// WithStopwords replaces the default English stop words. An empty list
// disables stop-word removal.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) == 0 {
			c.stopwords = nil
			return
		}
		c.stopwords = m
	}
}

// WithMaxDocs caps how many documents are indexed.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type passage struct {
	doc    int
	text   string
	tokens map[string]struct{}
}

type index struct {
	cfg      config
	docs     []Document
	passages []passage
}

// NewIndex builds an Index over docs.
func NewIndex(docs []Document, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return buildIndex(docs, cfg)
}

func buildIndex(docs []Document, cfg config) *index {
	ix := &index{cfg: cfg}
	for _, d := range docs {
		if cfg.maxDocs > 0 && len(ix.docs) >= cfg.maxDocs {
			break
		}
		text := strings.TrimSpace(normalizeWhitespace(d.Text))
		if text == "" {
			continue
		}
		di := len(ix.docs)
		added := false
		for _, p := range splitPassages(text, cfg.passageSentences) {
			if cfg.minPassageRunes > 0 && utf8.RuneCountInString(p) < cfg.minPassageRunes {
				continue
			}
			toks := tokenize(p, cfg.stopwords)
			if len(toks) == 0 {
				continue
			}
			ix.passages = append(ix.passages, passage{doc: di, text: p, tokens: toks})
			added = true
		}
		if added {
			ix.docs = append(ix.docs, d)
		}
	}
	return ix
}

// TopK returns up to k documents ranked by their best passage.
func (i *index) TopK(q string, k int) []Result {
	if len(i.passages) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 5
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	best := make(map[int]Result)
	for _, p := range i.passages {
		over := overlap(qTokens, p.tokens)
		if over == 0 {
			continue
		}
		score := float64(over) / float64(qLen+len(p.tokens)-over)
		cur, seen := best[p.doc]
		if !seen || score > cur.Score {
			d := i.docs[p.doc]
			best[p.doc] = Result{DocID: d.ID, Title: d.Title, Snippet: p.text, Score: score}
		}
	}
	if len(best) == 0 {
		return nil
	}

	out := make([]Result, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		la, lb := utf8.RuneCountInString(out[a].Snippet), utf8.RuneCountInString(out[b].Snippet)
		if la != lb {
			return la < lb
		}
		return out[a].DocID < out[b].DocID
	})
	if k < len(out) {
		out = out[:k]
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

var defaultStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// sentenceEndRE matches the whitespace after terminal punctuation.
var sentenceEndRE = regexp.MustCompile(`([.!?…])\s+`)

// splitPassages groups sentences n at a time.
func splitPassages(text string, n int) []string {
	marked := sentenceEndRE.ReplaceAllString(text, "$1\x00")
	var sentences []string
	for _, s := range strings.Split(marked, "\x00") {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if n <= 0 {
		n = 1
	}
	out := make([]string, 0, len(sentences)/n+1)
	for i := 0; i < len(sentences); i += n {
		end := i + n
		if end > len(sentences) {
			end = len(sentences)
		}
		out = append(out, strings.Join(sentences[i:end], " "))
	}
	return out
}
