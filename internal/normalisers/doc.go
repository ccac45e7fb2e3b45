// Package normalisers turns source files into plain text. Each normaliser
// handles a set of file extensions; the Registry picks one per file.
package normalisers
