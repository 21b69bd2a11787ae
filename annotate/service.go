// Package annotate is the job handler run by workers: it enriches a job
// mapping carrying lang and text with tokenization, sentiment, part of
// speech and named entity fields.
package annotate

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/codec"
	"github.com/mrjvadi/go-lbbroker/worker"
)

// ErrorNone is the error field value of a successful annotation.
const ErrorNone = "none"

var ErrTextNotString = errors.New("annotate: text is not a string")

type Service struct {
	router *Router
	prefix string
	logger *zap.Logger
}

func NewService(router *Router, prefix string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{router: router, prefix: prefix, logger: logger}
}

// Field returns the namespaced name of an output field.
func (s *Service) Field(name string) string { return s.prefix + name }

// Annotate enriches job in place and returns it. Jobs without a lang the
// router knows, or without text, come back unchanged.
func (s *Service) Annotate(job map[string]any) (map[string]any, error) {
	code, ok := job["lang"].(string)
	if !ok {
		return job, nil
	}
	lang, ok := s.router.Lookup(code)
	if !ok {
		return job, nil
	}
	raw, ok := job["text"]
	if !ok {
		return job, nil
	}
	text, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrTextNotString, raw)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return job, nil
	}

	tokens := lang.Tokenizer.Tokenize(text)
	tokenized := strings.Join(tokens, " ")
	job[s.Field("tokenized")] = tokenized

	if c, ok := lang.Sentiment.Get(); ok {
		job[s.Field("sentiment")] = c.Classify(lang.Preprocessor.Preprocess(tokenized))
	}
	if t, ok := lang.POS.Get(); ok {
		job[s.Field("pos")] = pairsValue(t.Tag(tokens))
	}
	if t, ok := lang.NE.Get(); ok {
		job[s.Field("ne")] = pairsValue(t.Tag(tokens))
	}
	job[s.Field("error")] = ErrorNone
	return job, nil
}

// Handle is the worker.HandlerFunc for annotation jobs.
func (s *Service) Handle(c *worker.Context) ([]byte, error) {
	var job map[string]any
	if err := c.Bind(&job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	if job == nil {
		return nil, errors.New("decode job: not a mapping")
	}
	out, err := s.Annotate(job)
	if err != nil {
		return nil, err
	}
	return c.Encode(out)
}

// Failure builds the reply for a failed job: only the error field, set to
// the failure description.
func (s *Service) Failure(c codec.Codec) worker.FailureFunc {
	return func(err error) []byte {
		b, mErr := c.Marshal(map[string]any{s.Field("error"): err.Error()})
		if mErr != nil {
			s.logger.Error("encode failure reply", zap.Error(mErr))
			return []byte(err.Error())
		}
		return b
	}
}
