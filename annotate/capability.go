package annotate

// Tokenizer splits raw text into tokens.
type Tokenizer interface {
	Tokenize(text string) []string
}

// Preprocessor normalizes tokenized text before classification.
type Preprocessor interface {
	Preprocess(tokenized string) string
}

// Classifier assigns a label to preprocessed text.
type Classifier interface {
	Classify(text string) string
}

// Tagger labels a token sequence. Chunking taggers may return fewer pairs
// than tokens.
type Tagger interface {
	Tag(tokens []string) []Pair
}

type Pair struct {
	Word string
	Tag  string
}

// Stage is a pipeline step that a language may or may not provide.
type Stage[T any] struct {
	v  T
	ok bool
}

func Some[T any](v T) Stage[T] { return Stage[T]{v: v, ok: true} }

func None[T any]() Stage[T] { return Stage[T]{} }

func (s Stage[T]) Get() (T, bool) { return s.v, s.ok }

func (s Stage[T]) Present() bool { return s.ok }

// pairsValue renders pairs in the shape every codec can carry.
func pairsValue(pairs []Pair) []any {
	out := make([]any, len(pairs))
	for i, p := range pairs {
		out[i] = []any{p.Word, p.Tag}
	}
	return out
}
