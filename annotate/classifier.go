package annotate

import (
	"strings"
)

const (
	Positive = "positive"
	Neutral  = "neutral"
	Negative = "negative"
)

// LexiconClassifier scores text by summing word and bigram weights. A
// negator flips the sign of the term that follows it.
type LexiconClassifier struct {
	weights   map[string]float64
	negators  map[string]struct{}
	threshold float64
}

func NewLexiconClassifier(l *SentimentLexicon) *LexiconClassifier {
	c := &LexiconClassifier{
		weights:   make(map[string]float64, len(l.Weights)),
		negators:  make(map[string]struct{}, len(l.Negators)),
		threshold: l.Threshold,
	}
	for term, w := range l.Weights {
		c.weights[strings.ToLower(term)] = w
	}
	for _, n := range l.Negators {
		c.negators[strings.ToLower(n)] = struct{}{}
	}
	return c
}

func (c *LexiconClassifier) Score(text string) float64 {
	words := strings.Fields(text)
	var score float64
	sign := 1.0
	for i := 0; i < len(words); i++ {
		if _, ok := c.negators[words[i]]; ok {
			sign = -1
			continue
		}
		if i+1 < len(words) {
			if w, ok := c.weights[words[i]+" "+words[i+1]]; ok {
				score += sign * w
				sign = 1
				i++
				continue
			}
		}
		if w, ok := c.weights[words[i]]; ok {
			score += sign * w
		}
		sign = 1
	}
	return score
}

// Classify labels empty text neutral.
func (c *LexiconClassifier) Classify(text string) string {
	s := c.Score(text)
	switch {
	case s > c.threshold:
		return Positive
	case s < -c.threshold:
		return Negative
	}
	return Neutral
}
