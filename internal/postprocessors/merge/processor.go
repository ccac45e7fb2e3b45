// Package merge folds short chunks into their neighbours.
package merge

import (
	"context"
	"unicode/utf8"
)

// DefaultMinLength is the default minimum chunk length in characters.
const DefaultMinLength = 40

// Processor joins consecutive chunks until each reaches a minimum length.
// A short trailing chunk is folded into the previous one.
type Processor struct {
	minLength int
	maxLength int
	separator string
}

// Option configures the merge processor.
type Option func(*Processor)

// WithMinLength sets the minimum chunk length in characters.
func WithMinLength(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.minLength = n
		}
	}
}

// WithMaxLength stops a merge that would grow a chunk past n characters.
func WithMaxLength(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxLength = n
		}
	}
}

// WithSeparator sets the string placed between merged chunks.
func WithSeparator(sep string) Option {
	return func(p *Processor) {
		p.separator = sep
	}
}

// New creates a merge processor.
func New(opts ...Option) *Processor {
	p := &Processor{
		minLength: DefaultMinLength,
		separator: " ",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "merge"
}

// Process merges the chunks it receives. With no chunks it returns the
// whole text as one chunk.
func (p *Processor) Process(_ context.Context, text string, chunks []string) ([]string, error) {
	if chunks == nil {
		if text == "" {
			return nil, nil
		}
		return []string{text}, nil
	}

	out := make([]string, 0, len(chunks))
	var cur string
	for _, c := range chunks {
		switch {
		case cur == "":
			cur = c
		case p.fits(cur, c):
			cur += p.separator + c
		default:
			out = append(out, cur)
			cur = c
		}
		if utf8.RuneCountInString(cur) >= p.minLength {
			out = append(out, cur)
			cur = ""
		}
	}

	if cur != "" {
		if n := len(out); n > 0 && p.fits(out[n-1], cur) {
			out[n-1] += p.separator + cur
		} else {
			out = append(out, cur)
		}
	}
	return out, nil
}

// fits reports whether joining a and b stays within the max length.
func (p *Processor) fits(a, b string) bool {
	if p.maxLength == 0 {
		return true
	}
	n := utf8.RuneCountInString(a) + utf8.RuneCountInString(p.separator) + utf8.RuneCountInString(b)
	return n <= p.maxLength
}
