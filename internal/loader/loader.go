// Package loader runs the flattening pipeline: it reads every raw snapshot
// file in a blob store partition, unnests the observations, and rebuilds the
// derived relations in one full-refresh pass.
package loader

import (
	"context"
	"errors"
	"log"

	"adsb_pipeline/internal/blobstore"
	"adsb_pipeline/internal/snapshot"
	"adsb_pipeline/internal/store"
)

// Archiver receives the retained position rows after a successful rebuild.
// Archive failures must not fail the load; the derived store is the source
// of truth and the archive is additive.
type Archiver interface {
	ArchivePositions(ctx context.Context, partition string, rows []store.Row) error
}

// Loader consumes one blob store partition and produces the derived store.
type Loader struct {
	blobs     blobstore.Store
	store     *store.Store
	partition string
	archiver  Archiver // optional
}

// New creates a Loader for the given partition. archiver may be nil.
func New(blobs blobstore.Store, st *store.Store, partition string, archiver Archiver) *Loader {
	return &Loader{blobs: blobs, store: st, partition: partition, archiver: archiver}
}

// Result summarizes one load run.
type Result struct {
	Files        int // raw files decoded
	SkippedFiles int // files that contributed zero observations
	Observations int // observations unnested across all files
	Aircraft     int // distinct icao values
	Positions    int // position rows retained
}

// Load rebuilds the derived relations from the partition's raw files. An
// empty partition is a successful no-op producing empty relations. Per-file
// decode failures skip the file; only a store-level failure aborts the run,
// and the rebuild's transaction guarantees no partial relations remain.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	var res Result

	keys, err := l.blobs.List(ctx, l.partition)
	if err != nil {
		return res, err
	}

	var rows []store.Row
	for _, key := range keys {
		data, err := l.blobs.Get(ctx, key)
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				continue
			}
			return res, err
		}

		doc, err := snapshot.Parse(data)
		if err != nil {
			log.Printf("load: skipping %s: %v", key, err)
			res.SkippedFiles++
			continue
		}
		if len(doc.Observations) == 0 {
			res.SkippedFiles++
			continue
		}

		res.Files++
		res.Observations += len(doc.Observations)
		for _, obs := range doc.Observations {
			rows = append(rows, toRow(obs, doc))
		}
	}

	retained := retainedPositions(rows)
	res.Positions = len(retained)
	res.Aircraft = distinctICAO(rows)

	if err := l.store.Rebuild(ctx, rows); err != nil {
		return res, err
	}

	if l.archiver != nil && len(retained) > 0 {
		if err := l.archiver.ArchivePositions(ctx, l.partition, retained); err != nil {
			log.Printf("load: archive failed for %s: %v", l.partition, err)
		}
	}

	log.Printf("load: partition=%s files=%d skipped=%d observations=%d aircraft=%d positions=%d",
		l.partition, res.Files, res.SkippedFiles, res.Observations, res.Aircraft, res.Positions)
	return res, nil
}

func toRow(obs snapshot.Observation, doc *snapshot.Document) store.Row {
	r := store.Row{
		ICAO:         obs.ICAO,
		Registration: obs.Registration,
		Type:         obs.Type,
		Lat:          obs.Lat,
		Lon:          obs.Lon,
		GroundSpeed:  obs.GroundSpeed,
		Emergency:    obs.Emergency,
		Timestamp:    doc.CapturedAt,
		HasTimestamp: doc.HasTimestamp,
	}
	if obs.AltBaro.Valid {
		feet := obs.AltBaro.Feet
		r.AltBaro = &feet
	}
	return r
}

// retainedPositions applies the position retention rule: icao, coordinates
// and timestamp must all be present.
func retainedPositions(rows []store.Row) []store.Row {
	var kept []store.Row
	for _, r := range rows {
		if r.ICAO != "" && r.Lat != nil && r.Lon != nil && r.HasTimestamp {
			kept = append(kept, r)
		}
	}
	return kept
}

func distinctICAO(rows []store.Row) int {
	seen := make(map[string]struct{})
	for _, r := range rows {
		if r.ICAO != "" {
			seen[r.ICAO] = struct{}{}
		}
	}
	return len(seen)
}
