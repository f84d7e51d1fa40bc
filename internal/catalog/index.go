// Package catalog ranks businesses for discovery. It builds a small,
// immutable, in-memory index over each business's name, description and
// services and scores queries by Jaccard similarity between token sets:
// score = |Q ∩ B| / |Q ∪ B|.
//
// Tokens are case-folded and stripped of diacritics, so "Reparación" and
// "reparacion" match. The index never logs; callers decide what to do with
// an empty result.
package catalog

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-repair-backend/internal/domain"
)

// Hit is a ranked business with its similarity score.
type Hit struct {
	BusinessID string
	Score      float64
}

// Option configures an Index.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
}

// DefaultStopwords are dropped from both queries and business text.
var DefaultStopwords = []string{"a", "an", "and", "the", "of", "for", "de", "la", "el", "y", "en"}

func defaultConfig() config {
	c := config{}
	WithStopwords(DefaultStopwords)(&c)
	return c
}

// WithStopwords replaces the stop-word list. An empty list keeps the
// current one.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = fold(strings.TrimSpace(w)); w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

type entry struct {
	id     string
	name   string
	tokens map[string]struct{}
}

// Index is safe for concurrent use once built.
type Index struct {
	cfg     config
	entries []entry
}

// NewIndex indexes businesses. Businesses without any indexable text are
// skipped.
func NewIndex(businesses []domain.Business, opts ...Option) *Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	entries := make([]entry, 0, len(businesses))
	for _, b := range businesses {
		text := b.Name + " " + b.Description + " " + strings.Join(b.Services, " ")
		toks := tokenize(text, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		entries = append(entries, entry{id: b.ID, name: b.Name, tokens: toks})
	}
	return &Index{cfg: cfg, entries: entries}
}

// Len reports the number of indexed businesses.
func (i *Index) Len() int { return len(i.entries) }

// TopK returns up to k businesses by descending score. Ties are broken by
// name, then id.
func (i *Index) TopK(q string, k int) []Hit {
	if len(i.entries) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 10
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		entry
		score float64
	}
	buf := make([]scored, 0, len(i.entries))
	for _, e := range i.entries {
		over := overlap(qTokens, e.tokens)
		if over == 0 {
			continue
		}
		union := float64(len(qTokens) + len(e.tokens) - over)
		buf = append(buf, scored{entry: e, score: float64(over) / union})
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].name != buf[b].name {
			return buf[a].name < buf[b].name
		}
		return buf[a].id < buf[b].id
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Hit, k)
	for n := 0; n < k; n++ {
		out[n] = Hit{BusinessID: buf[n].id, Score: buf[n].score}
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

// fold lower-cases s and removes combining marks.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
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
	return out
}

func overlap(a, b map[string]struct{}) int {
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
