package annotate

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicons/*.yaml
var builtinLexicons embed.FS

var ErrUnknownLexicon = errors.New("annotate: unknown lexicon")

// Lexicon holds everything needed to build one language.
type Lexicon struct {
	Language  string            `yaml:"language"`
	Tokenizer string            `yaml:"tokenizer,omitempty"`
	Sentiment *SentimentLexicon `yaml:"sentiment,omitempty"`
	POS       *TagLexicon       `yaml:"pos,omitempty"`
	NE        *TagLexicon       `yaml:"ne,omitempty"`
}

type SentimentLexicon struct {
	Threshold float64            `yaml:"threshold"`
	Negators  []string           `yaml:"negators,omitempty"`
	Weights   map[string]float64 `yaml:"weights"`
}

type TagLexicon struct {
	Fallback string            `yaml:"fallback"`
	Chunk    bool              `yaml:"chunk,omitempty"`
	Punct    string            `yaml:"punct,omitempty"`
	Number   string            `yaml:"number,omitempty"`
	Suffixes map[string]string `yaml:"suffixes,omitempty"`
	Entries  map[string]string `yaml:"entries"`
}

// ParseLexicon decodes a YAML lexicon document.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var l Lexicon
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	return &l, nil
}

// BuiltinLexicon returns the lexicon shipped for lang.
func BuiltinLexicon(lang string) (*Lexicon, error) {
	data, err := builtinLexicons.ReadFile("lexicons/" + lang + ".yaml")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: builtin:%s", ErrUnknownLexicon, lang)
	}
	if err != nil {
		return nil, err
	}
	return ParseLexicon(data)
}

// BuiltinLanguages lists the languages with a shipped lexicon.
func BuiltinLanguages() []string {
	entries, _ := builtinLexicons.ReadDir("lexicons")
	langs := make([]string, 0, len(entries))
	for _, e := range entries {
		langs = append(langs, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return langs
}

// LoadLexiconFile reads a YAML lexicon from disk.
func LoadLexiconFile(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return ParseLexicon(data)
}

// WriteLexiconFile saves l as YAML.
func WriteLexiconFile(l *Lexicon, path string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode lexicon: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
