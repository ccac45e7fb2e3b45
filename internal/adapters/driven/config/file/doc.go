// Package file provides the TOML-backed configuration store.
package file
