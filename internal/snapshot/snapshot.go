// Package snapshot decodes raw readsb-hist snapshot files into per-aircraft
// observations.
//
// A snapshot file is one JSON document of the form
//
//	{"now": 1698796800.0, "aircraft": [{...}, ...]}
//
// where each aircraft entry carries heterogeneous fields: alt_baro in
// particular is either a number of feet or the literal string "ground".
// Files from the sample source sometimes carry a .gz extension without
// actually being compressed, so decompression is decided by sniffing the
// gzip magic bytes rather than by file name.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Altitude is a barometric altitude that tolerates the "ground" sentinel.
// Any value that does not parse as a number decodes as not-Valid instead of
// failing the document.
type Altitude struct {
	Feet  int64
	Valid bool
}

// UnmarshalJSON implements try-parse numeric coercion: numbers and numeric
// strings become feet, anything else (notably "ground") becomes null.
func (a *Altitude) UnmarshalJSON(data []byte) error {
	a.Feet, a.Valid = 0, false

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return a.set(n.String())
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return a.set(s)
	}
	return nil
}

func (a *Altitude) set(s string) error {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		a.Feet, a.Valid = i, true
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		a.Feet, a.Valid = int64(f), true
		return nil
	}
	return nil
}

// Observation is one aircraft's state within a snapshot document.
type Observation struct {
	ICAO         string   `json:"hex"`
	Registration string   `json:"r"`
	Type         string   `json:"t"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	AltBaro      Altitude `json:"alt_baro"`
	GroundSpeed  *float64 `json:"gs"`
	Emergency    string   `json:"emergency"`
}

// Document is one decoded snapshot file. HasTimestamp is false when the
// "now" field is absent; such documents still contribute observations to the
// aircraft dimension but cannot produce position rows.
type Document struct {
	CapturedAt   int64
	HasTimestamp bool
	Observations []Observation
}

// wireDocument matches the on-disk JSON shape.
type wireDocument struct {
	Now      *float64          `json:"now"`
	Aircraft []json.RawMessage `json:"aircraft"`
}

// Parse decodes a raw snapshot file. Individual aircraft entries that fail
// to decode are skipped; a document without an aircraft array yields zero
// observations.
func Parse(data []byte) (*Document, error) {
	data, err := maybeGunzip(data)
	if err != nil {
		return nil, err
	}

	var wire wireDocument
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	doc := &Document{}
	if wire.Now != nil {
		doc.CapturedAt = int64(*wire.Now)
		doc.HasTimestamp = true
	}
	if len(wire.Aircraft) == 0 {
		return doc, nil
	}

	doc.Observations = make([]Observation, 0, len(wire.Aircraft))
	for _, raw := range wire.Aircraft {
		var obs Observation
		if err := json.Unmarshal(raw, &obs); err != nil {
			continue
		}
		doc.Observations = append(doc.Observations, obs)
	}
	return doc, nil
}

// maybeGunzip decompresses data when it starts with the gzip magic bytes.
func maybeGunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = zr.Close() }()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	return out, nil
}
