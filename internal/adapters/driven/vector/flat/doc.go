// Package flat provides an exact, in-memory implementation of driven.VectorIndex.
//
// Each domain owns one partition holding unit-normalised vectors in insertion
// order. Queries scan the whole partition, so results are exact rather than
// approximate. Live Sids are tracked in a 64-bit roaring bitmap, which turns
// document and domain removal into range operations.
package flat
