// Package ingestion loads the cleaned Michelin restaurant corpus.
//
// Reader decodes the corpus CSV produced by the upstream scraping and
// cleaning steps, tolerating the column spellings those steps emit. The
// Pipeline validates records, optionally embeds their descriptions, and
// stores them by replacing the corpus or appending to it.
package ingestion
