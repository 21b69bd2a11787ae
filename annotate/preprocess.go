package annotate

import (
	"regexp"
	"strings"
)

var (
	numberRE  = regexp.MustCompile(`\b\d+(?:[,./]\d+)*\b`)
	mentionRE = regexp.MustCompile(atMention)
	hashRE    = regexp.MustCompile(`(^|\s)#([\p{L}\p{N}_]+)`)
)

// TweetPreprocessor replaces numbers, URLs and mentions with placeholder
// tokens, splits the # off hashtags and lowercases the result.
type TweetPreprocessor struct{}

func (TweetPreprocessor) Preprocess(text string) string {
	if text == "" {
		return text
	}
	text = numberRE.ReplaceAllString(text, "tnumnum")
	text = urlRE.ReplaceAllString(text, "turlurl")
	text = mentionRE.ReplaceAllString(text, "tuseruser")
	text = hashRE.ReplaceAllString(text, " # ${2}")
	return strings.TrimSpace(strings.ToLower(text))
}
