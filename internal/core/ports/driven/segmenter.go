package driven

import "context"

// Segmenter splits document text into ordered chunks. The same input must
// always produce the same chunks since chunk ordinals become item ids.
type Segmenter interface {
	Segment(ctx context.Context, text string) ([]string, error)
}

// PostProcessor is one stage of a segmentation pipeline.
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process receives the document text and the chunks produced so far.
	// A processor that creates chunks (e.g. sentence) receives nil chunks.
	// A processor that refines chunks (e.g. merge) transforms the slice it receives.
	Process(ctx context.Context, text string, chunks []string) ([]string, error)
}
