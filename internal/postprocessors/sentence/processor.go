// Package sentence splits text into sentences.
package sentence

import (
	"context"
	"strings"
	"unicode"
)

// Processor emits one chunk per sentence. A sentence ends at '.', '!', '?'
// or '…' (plus any closing quotes or brackets) followed by whitespace, or
// at a blank line.
type Processor struct {
	maxLength int
}

// Option configures the sentence processor.
type Option func(*Processor)

// WithMaxLength splits sentences longer than n runes at the last space
// before the limit.
func WithMaxLength(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxLength = n
		}
	}
}

// New creates a sentence processor.
func New(opts ...Option) *Processor {
	p := &Processor{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "sentence"
}

// Process splits text into sentences. Input chunks are ignored.
func (p *Processor) Process(_ context.Context, text string, _ []string) ([]string, error) {
	var out []string
	for _, s := range Split(text) {
		if p.maxLength > 0 {
			out = append(out, wrap(s, p.maxLength)...)
		} else {
			out = append(out, s)
		}
	}
	return out, nil
}

// Split returns the trimmed, non-empty sentences of text in order.
func Split(text string) []string {
	runes := []rune(text)
	var (
		out   []string
		start int
	)
	emit := func(end int) {
		s := strings.Join(strings.Fields(string(runes[start:end])), " ")
		if s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case isTerminal(r):
			j := i + 1
			for j < len(runes) && (isTerminal(runes[j]) || isCloser(runes[j])) {
				j++
			}
			if j == len(runes) || unicode.IsSpace(runes[j]) {
				emit(j)
				i = j - 1
			}
		case r == '\n' && i+1 < len(runes) && blankLineAhead(runes[i+1:]):
			emit(i)
		}
	}
	emit(len(runes))
	return out
}

// blankLineAhead reports whether rest starts with optional horizontal
// whitespace and a newline.
func blankLineAhead(rest []rune) bool {
	for _, r := range rest {
		switch {
		case r == '\n':
			return true
		case unicode.IsSpace(r):
			continue
		default:
			return false
		}
	}
	return false
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}

// wrap breaks s into pieces of at most n runes, preferring spaces.
func wrap(s string, n int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > n {
		cut := n
		for i := n; i > 0; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		piece := strings.TrimSpace(string(runes[:cut]))
		if piece != "" {
			out = append(out, piece)
		}
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " "))
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		out = append(out, rest)
	}
	return out
}
