// Package distance implements the similarity primitives used by the
// training core: dot products against a flattened embedding bank and L2
// normalization of embeddings.
//
// All embeddings in this module are expected to be unit-norm, so dot
// product and cosine similarity coincide.
package distance
