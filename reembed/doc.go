// Package reembed attaches description embeddings to the restaurant corpus.
//
// CorpusEmbedder turns a collection of records into the same collection with
// vectors populated, reporting per-record failures without aborting the
// batch. Reembedder drives it over a whole repository, committing vectors,
// tracking progress and refusing to mix vectors from different models.
//
// Stored vectors are cached against a hash of the description they were
// computed from; unchanged descriptions are not sent to the model again
// unless a pass is forced.
package reembed
