package driven

import "context"

// NormaliserRegistry selects the appropriate normaliser for a file.
// It keeps normalisers ordered by priority and dispatches on extension.
type NormaliserRegistry interface {
	// Normalise converts a file using the best matching normaliser.
	Normalise(ctx context.Context, path string, content []byte) (*NormaliseResult, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedExtensions returns all extensions that can be normalised.
	SupportedExtensions() []string
}
