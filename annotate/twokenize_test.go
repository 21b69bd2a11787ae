package annotate

import (
	"reflect"
	"testing"
)

func TestTwokenize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"i love my iphone because apple is the best :)", []string{"i", "love", "my", "iphone", "because", "apple", "is", "the", "best", ":)"}},
		{"Check http://t.co/abc123, @bob #fun!", []string{"Check", "http://t.co/abc123", ",", "@bob", "#fun", "!"}},
		{"it's 10:30 now... see you", []string{"it's", "10:30", "now", "...", "see", "you"}},
		{"(hello)", []string{"(", "hello", ")"}},
		{"  spaced \t out  ", []string{"spaced", "out"}},
		{"", nil},
	}
	for _, c := range cases {
		if got := (Twokenizer{}).Tokenize(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTwokenizeApostrophes(t *testing.T) {
	tok := Twokenizer{BreakApostrophes: true}
	cases := []struct {
		in   string
		want []string
	}{
		{"l'amore è bello", []string{"l'", "amore", "è", "bello"}},
		{"dell'anno", []string{"dell'", "anno"}},
		// no letters after the apostrophe: token kept whole
		{"rock'", []string{"rock'"}},
	}
	for _, c := range cases {
		if got := tok.Tokenize(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTokenizerByName(t *testing.T) {
	for _, name := range []string{"", "twokenize", "apostrophes", "Whitespace"} {
		if _, ok := TokenizerByName(name); !ok {
			t.Fatalf("tokenizer %q not found", name)
		}
	}
	if _, ok := TokenizerByName("bpe"); ok {
		t.Fatalf("unexpected tokenizer bpe")
	}
	ws, _ := TokenizerByName("whitespace")
	if got := ws.Tokenize("a,b  c"); !reflect.DeepEqual(got, []string{"a,b", "c"}) {
		t.Fatalf("whitespace tokens: %q", got)
	}
}

func TestPreprocess(t *testing.T) {
	got := TweetPreprocessor{}.Preprocess("I love @bob http://t.co/x 2,000 #fun")
	if want := "i love tuseruser turlurl tnumnum # fun"; got != want {
		t.Fatalf("Preprocess = %q, want %q", got, want)
	}
	if got := (TweetPreprocessor{}).Preprocess(""); got != "" {
		t.Fatalf("empty text became %q", got)
	}
}
