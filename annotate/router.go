package annotate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/config"
)

// Language is the capability set configured for one language code.
type Language struct {
	Code         string
	Tokenizer    Tokenizer
	Preprocessor Preprocessor
	Sentiment    Stage[Classifier]
	POS          Stage[Tagger]
	NE           Stage[Tagger]
}

// NewLanguage builds the capability set from a lexicon. lc may restrict the
// stages or override the tokenizer.
func NewLanguage(code string, lex *Lexicon, lc config.LanguageConfig) (*Language, error) {
	name := lex.Tokenizer
	if lc.Tokenizer != "" {
		name = lc.Tokenizer
	}
	tok, ok := TokenizerByName(name)
	if !ok {
		return nil, fmt.Errorf("language %s: unknown tokenizer %q", code, name)
	}

	want := func(stage string) bool {
		if len(lc.Stages) == 0 {
			return true
		}
		for _, s := range lc.Stages {
			if s == stage {
				return true
			}
		}
		return false
	}

	l := &Language{
		Code:         code,
		Tokenizer:    tok,
		Preprocessor: TweetPreprocessor{},
		Sentiment:    None[Classifier](),
		POS:          None[Tagger](),
		NE:           None[Tagger](),
	}
	if lex.Sentiment != nil && want("sentiment") {
		l.Sentiment = Some[Classifier](NewLexiconClassifier(lex.Sentiment))
	}
	if lex.POS != nil && want("pos") {
		l.POS = Some[Tagger](NewDictTagger(lex.POS))
	}
	if lex.NE != nil && want("ne") {
		l.NE = Some[Tagger](NewDictTagger(lex.NE))
	}
	return l, nil
}

// Router maps language codes to their capability sets. It is built once at
// startup and only read afterwards.
type Router struct {
	langs map[string]*Language
}

func NewRouter(langs ...*Language) *Router {
	r := &Router{langs: make(map[string]*Language, len(langs))}
	for _, l := range langs {
		r.langs[l.Code] = l
	}
	return r
}

// BuildRouter loads every configured language.
func BuildRouter(ctx context.Context, cfg config.AnnotateConfig, logger *zap.Logger) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var db *LexiconDB
	defer func() {
		if db != nil {
			db.Close()
		}
	}()

	codes := make([]string, 0, len(cfg.Languages))
	for code := range cfg.Languages {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	langs := make([]*Language, 0, len(codes))
	for _, code := range codes {
		lc := cfg.Languages[code]
		lex, err := func() (*Lexicon, error) {
			ref := strings.TrimSpace(lc.Lexicon)
			switch {
			case strings.HasPrefix(ref, "builtin:"):
				return BuiltinLexicon(strings.TrimPrefix(ref, "builtin:"))
			case strings.HasPrefix(ref, "sqlite:"):
				if db == nil {
					if cfg.LexiconDB == "" {
						return nil, errors.New("annotate.lexicon_db is not set")
					}
					var err error
					if db, err = OpenLexiconDB(cfg.LexiconDB); err != nil {
						return nil, err
					}
				}
				return db.Load(ctx, strings.TrimPrefix(ref, "sqlite:"))
			default:
				return LoadLexiconFile(ref)
			}
		}()
		if err != nil {
			return nil, fmt.Errorf("language %s: %w", code, err)
		}
		l, err := NewLanguage(code, lex, lc)
		if err != nil {
			return nil, err
		}
		logger.Debug("language loaded",
			zap.String("lang", code),
			zap.String("lexicon", lc.Lexicon),
			zap.Bool("sentiment", l.Sentiment.Present()),
			zap.Bool("pos", l.POS.Present()),
			zap.Bool("ne", l.NE.Present()),
		)
		langs = append(langs, l)
	}
	return NewRouter(langs...), nil
}

func (r *Router) Lookup(code string) (*Language, bool) {
	l, ok := r.langs[code]
	return l, ok
}

func (r *Router) Languages() []string {
	codes := make([]string, 0, len(r.langs))
	for c := range r.langs {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
