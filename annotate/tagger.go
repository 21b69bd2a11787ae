package annotate

import (
	"sort"
	"strings"
	"unicode"
)

// DictTagger tags tokens from a phrase dictionary. Multi-word entries win
// over shorter ones starting at the same token; tokens outside the
// dictionary fall through to the punctuation, number and suffix rules and
// finally the fallback tag.
type DictTagger struct {
	entries  map[string]string
	maxWords int
	suffixes []suffixRule
	fallback string
	punct    string
	number   string
	chunk    bool
}

type suffixRule struct{ suffix, tag string }

func NewDictTagger(l *TagLexicon) *DictTagger {
	t := &DictTagger{
		entries:  make(map[string]string, len(l.Entries)),
		maxWords: 1,
		fallback: l.Fallback,
		punct:    l.Punct,
		number:   l.Number,
		chunk:    l.Chunk,
	}
	for phrase, tag := range l.Entries {
		key := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
		if key == "" {
			continue
		}
		t.entries[key] = tag
		if n := strings.Count(key, " ") + 1; n > t.maxWords {
			t.maxWords = n
		}
	}
	for suffix, tag := range l.Suffixes {
		t.suffixes = append(t.suffixes, suffixRule{strings.ToLower(suffix), tag})
	}
	// longest suffix first, then alphabetical so results are stable
	sort.Slice(t.suffixes, func(i, j int) bool {
		a, b := t.suffixes[i].suffix, t.suffixes[j].suffix
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	return t
}

func (t *DictTagger) Tag(tokens []string) []Pair {
	pairs := make([]Pair, 0, len(tokens))
	for i := 0; i < len(tokens); {
		n, tag := t.lookup(tokens[i:])
		if n == 0 {
			pairs = append(pairs, Pair{tokens[i], t.rule(tokens[i])})
			i++
			continue
		}
		for _, tok := range tokens[i : i+n] {
			pairs = append(pairs, Pair{tok, tag})
		}
		i += n
	}
	if t.chunk {
		return Chunk(pairs, t.fallback)
	}
	return pairs
}

func (t *DictTagger) lookup(tokens []string) (int, string) {
	for n := min(t.maxWords, len(tokens)); n > 0; n-- {
		key := strings.ToLower(strings.Join(tokens[:n], " "))
		if tag, ok := t.entries[key]; ok {
			return n, tag
		}
	}
	return 0, ""
}

func (t *DictTagger) rule(tok string) string {
	if t.punct != "" && isPunct(tok) {
		return t.punct
	}
	if t.number != "" && numberRE.MatchString(tok) && strings.Trim(tok, "0123456789.,/") == "" {
		return t.number
	}
	lower := strings.ToLower(tok)
	for _, r := range t.suffixes {
		if len(lower) > len(r.suffix) && strings.HasSuffix(lower, r.suffix) {
			return r.tag
		}
	}
	return t.fallback
}

func isPunct(tok string) bool {
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return tok != ""
}

// Chunk merges runs of adjacent pairs that share a tag other than outside,
// e.g. New/LOCATION York/LOCATION becomes "New York"/LOCATION.
func Chunk(pairs []Pair, outside string) []Pair {
	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if n := len(out); n > 0 && p.Tag != outside && out[n-1].Tag == p.Tag {
			out[n-1].Word += " " + p.Word
			continue
		}
		out = append(out, p)
	}
	return out
}
