// Package textutil holds the text helpers shared by generation and episode
// metadata: markdown flattening for speech and keyword tokenization.
package textutil
