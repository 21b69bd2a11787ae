package annotate

import (
	"regexp"
	"strings"
)

// Twitter-aware tokenization. Spans such as URLs, emoticons, mentions and
// abbreviations are protected from further splitting; everything between
// them is split on whitespace after edge punctuation has been detached.

func or(parts ...string) string { return "(?:" + strings.Join(parts, "|") + ")" }

const (
	entity     = `&(?:amp|lt|gt|quot);`
	punctSeq   = `['"“”‘’]+|[.?!,…]+|[:;]+`

	urlStart1  = `(?:https?://|\bwww\.)`
	commonTLDs = `(?:com|org|edu|gov|net|mil|aero|asia|biz|cat|coop|info|int|jobs|mobi|museum|name|pro|tel|travel|xxx)`
	ccTLDs     = `(?:at|au|be|br|ca|ch|cn|co|cz|de|dk|es|eu|fi|fr|gr|hu|ie|il|in|io|it|jp|kr|ly|me|mx|nl|no|nz|pl|pt|ru|se|si|tv|tw|uk|us|za)`
	// the body may not end in punctuation that usually trails a link
	urlBody = `(?:[^\s<>]*[^\s<>.,:;!?'"“”‘’)\]])?`

	timeLike         = `\d+(?::\d+){1,2}`
	numberWithCommas = `\d{1,3}(?:,\d{3})+`
	numComb          = `[$\x{058f}\x{060b}\x{09f2}\x{09f3}\x{09fb}\x{0af1}\x{0bf9}\x{0e3f}\x{17db}\x{a838}\x{fdfc}\x{fe69}\x{ff04}\x{ffe0}\x{ffe1}\x{ffe5}\x{ffe6}\x{00a2}-\x{00a5}\x{20a0}-\x{20b9}]?\d+(?:\.\d+)+%?`

	abbrevDots = `(?:[A-Za-z]\.){2,}`
	abbrevStd  = `\b(?:[Mm]rs?|[Mm]s|[Dd]r|[Ss]r|[Jj]r|[Rr]ep|[Ss]en|[Ss]t)\.`

	separators  = `(?:--+|―|—|~|–|=)`
	decorations = `(?:[♫♪]+|[★☆]+|[♥❤♡]+|[\x{2639}-\x{263b}]+|[\x{e001}-\x{ebbb}]+)`

	embeddedApostrophe = `[^\s.,?"]+['’′][^\s.,?"]*`

	hearts = `(?:<+/?3+)+`
	arrows = `(?:<*[-―—=]*>+|<+[-―—=]*>*|[\x{2190}-\x{21ff}]+)`

	hashtag   = `#[a-zA-Z0-9_]+`
	atMention = `[@＠][a-zA-Z0-9_]+`
	email     = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,4}\b`

	edgePunct    = `['"“”‘’«»{}()\[\]*&]`
	notEdgePunct = `[a-zA-Z0-9]`
	offEdge      = `(^|$|:|;|\s|\.|,)`
)

var (
	urlStart2 = `\b[A-Za-z\d-]+(?:\.[A-Za-z0-9]+){0,3}\.` + or(commonTLDs, ccTLDs) + `(?:\.` + ccTLDs + `)?\b`
	url       = or(urlStart1, urlStart2) + urlBody

	emoticon = or(
		// :) :( :D :P ;-) =]
		`(?:>|&gt;)?[:=;](?:|-|[^a-zA-Z0-9 ]|[Oo])`+or(`[pPd3]+\b`, `(?:[oO]+|[vV]+|[Ss]+)\b`, `[/\\]+`, `[|]+`, `[(\[{]+`, `[D)\]}]+`),
		`\^[_-]*\^`,
		`\b[oO](?:\.|[_-]+)[oO]\b`,
	)

	protected = regexp.MustCompile(or(
		hearts,
		url,
		email,
		timeLike,
		numberWithCommas,
		numComb,
		emoticon,
		arrows,
		entity,
		punctSeq,
		abbrevDots,
		abbrevStd,
		separators,
		decorations,
		embeddedApostrophe,
		hashtag,
		atMention,
	))

	edgePunctLeft  = regexp.MustCompile(offEdge + `(` + edgePunct + `+)(` + notEdgePunct + `)`)
	edgePunctRight = regexp.MustCompile(`(` + notEdgePunct + `)(` + edgePunct + `+)` + offEdge)

	whitespace = regexp.MustCompile(`[\s\x{00a0}\x{1680}\x{180e}\x{202f}\x{205f}\x{3000}\x{2000}-\x{200a}]+`)
	emoji      = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}]`)
	apWord     = regexp.MustCompile(`^([\p{L}\p{N}_]+)(['’])([\p{L}\p{N}_]+)`)

	urlRE = regexp.MustCompile(url)
)

func splitEdgePunct(s string) string {
	s = edgePunctLeft.ReplaceAllString(s, "${1}${2} ${3}")
	return edgePunctRight.ReplaceAllString(s, "${1} ${2}${3}")
}

func squeezeWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func simpleTokenize(text string) []string {
	s := splitEdgePunct(text)

	var tokens []string
	last := 0
	for _, span := range protected.FindAllStringIndex(s, -1) {
		if span[0] == span[1] {
			continue
		}
		tokens = append(tokens, strings.Fields(s[last:span[0]])...)
		tokens = append(tokens, strings.TrimSpace(s[span[0]:span[1]]))
		last = span[1]
	}
	tokens = append(tokens, strings.Fields(s[last:])...)

	// emoji glued to words become tokens of their own
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if emoji.MatchString(tok) {
			out = append(out, strings.Fields(emoji.ReplaceAllString(tok, " $0 "))...)
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Twokenizer is the default tokenizer. With BreakApostrophes a leading elided
// article is split off: l'amore becomes l' and amore.
type Twokenizer struct {
	BreakApostrophes bool
}

func (t Twokenizer) Tokenize(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "&amp;", "&")
	tokens := simpleTokenize(squeezeWhitespace(text))
	if !t.BreakApostrophes {
		return tokens
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		m := apWord.FindStringSubmatchIndex(tok)
		if m == nil {
			out = append(out, tok)
			continue
		}
		// m[5] ends the apostrophe; the rest, suffix included, stays together
		out = append(out, tok[:m[5]], tok[m[5]:])
	}
	return out
}

// WhitespaceTokenizer splits on runs of whitespace only.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokenize(text string) []string { return strings.Fields(text) }

// TokenizerByName resolves the tokenizer names used in configuration.
func TokenizerByName(name string) (Tokenizer, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "twokenize":
		return Twokenizer{}, true
	case "apostrophes":
		return Twokenizer{BreakApostrophes: true}, true
	case "whitespace":
		return WhitespaceTokenizer{}, true
	}
	return nil, false
}
