package repo

import (
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-repair-backend/internal/docstore"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = docstore.ErrNotFound

// toDoc converts v into a document body and marks the given fields as
// server timestamps.
func toDoc(v any, serverTimestamps ...string) (map[string]any, error) {
	m, err := docstore.ToMap(v)
	if err != nil {
		return nil, err
	}
	for _, f := range serverTimestamps {
		m[f] = docstore.ServerTimestamp
	}
	return m, nil
}

// decodeAll maps documents to T. A document that fails to decode is logged
// and skipped; the rest of the batch is still returned. setID fills the
// record id from the document id when the body does not carry one.
func decodeAll[T any](docs []docstore.Document, setID func(*T, string)) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.DataTo(&v); err != nil {
			log.Warn().Err(err).Str("collection", d.Collection).Str("id", d.ID).Msg("skipping malformed document")
			continue
		}
		if setID != nil {
			setID(&v, d.ID)
		}
		out = append(out, v)
	}
	return out
}

// decodeOne maps a single document.
func decodeOne[T any](d *docstore.Document, setID func(*T, string)) (*T, error) {
	var v T
	if err := d.DataTo(&v); err != nil {
		return nil, err
	}
	if setID != nil {
		setID(&v, d.ID)
	}
	return &v, nil
}
