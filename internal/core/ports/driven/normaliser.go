package driven

import "context"

// Normaliser turns a source file into plain text ready for segmentation.
// Each normaliser handles specific file extensions (e.g. Markdown).
type Normaliser interface {
	// SupportedExtensions returns the lower-case file suffixes handled, with the dot.
	SupportedExtensions() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise converts raw file content into text.
	Normalise(ctx context.Context, path string, content []byte) (*NormaliseResult, error)
}

// NormaliseResult contains the output of normalisation.
type NormaliseResult struct {
	// Title is taken from the first heading or the file name.
	Title string

	// Content is the text handed to the segmenter.
	Content string
}
