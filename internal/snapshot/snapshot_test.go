package snapshot

import (
	"bytes"
	"compress/gzip"
	"testing"
)

func TestParseBasicDocument(t *testing.T) {
	data := []byte(`{
		"now": 1698796800.0,
		"aircraft": [
			{"hex": "abc123", "r": "N123AB", "t": "B738", "lat": 40.7, "lon": -74.0, "alt_baro": 35000, "gs": 450.0}
		]
	}`)

	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.CapturedAt != 1698796800 {
		t.Errorf("CapturedAt = %d, want 1698796800", doc.CapturedAt)
	}
	if len(doc.Observations) != 1 {
		t.Fatalf("got %d observations, want 1", len(doc.Observations))
	}

	obs := doc.Observations[0]
	if obs.ICAO != "abc123" || obs.Registration != "N123AB" || obs.Type != "B738" {
		t.Errorf("identity fields = %q/%q/%q", obs.ICAO, obs.Registration, obs.Type)
	}
	if obs.Lat == nil || *obs.Lat != 40.7 {
		t.Errorf("Lat = %v, want 40.7", obs.Lat)
	}
	if obs.Lon == nil || *obs.Lon != -74.0 {
		t.Errorf("Lon = %v, want -74.0", obs.Lon)
	}
	if !obs.AltBaro.Valid || obs.AltBaro.Feet != 35000 {
		t.Errorf("AltBaro = %+v, want 35000", obs.AltBaro)
	}
	if obs.GroundSpeed == nil || *obs.GroundSpeed != 450.0 {
		t.Errorf("GroundSpeed = %v, want 450.0", obs.GroundSpeed)
	}
}

func TestParseGzipped(t *testing.T) {
	raw := []byte(`{"now": 1698796800, "aircraft": [{"hex": "abc123"}]}`)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	doc, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse gzipped: %v", err)
	}
	if len(doc.Observations) != 1 || doc.Observations[0].ICAO != "abc123" {
		t.Errorf("observations = %+v", doc.Observations)
	}
}

func TestAltitudeCoercion(t *testing.T) {
	tests := []struct {
		name      string
		altBaro   string
		wantValid bool
		wantFeet  int64
	}{
		{name: "integer", altBaro: `35000`, wantValid: true, wantFeet: 35000},
		{name: "float", altBaro: `10250.5`, wantValid: true, wantFeet: 10250},
		{name: "numeric string", altBaro: `"1200"`, wantValid: true, wantFeet: 1200},
		{name: "ground sentinel", altBaro: `"ground"`, wantValid: false},
		{name: "null", altBaro: `null`, wantValid: false},
		{name: "garbage", altBaro: `{"x": 1}`, wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte(`{"now": 1, "aircraft": [{"hex": "a", "alt_baro": ` + tt.altBaro + `}]}`)
			doc, err := Parse(data)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(doc.Observations) != 1 {
				t.Fatalf("got %d observations, want 1", len(doc.Observations))
			}
			alt := doc.Observations[0].AltBaro
			if alt.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", alt.Valid, tt.wantValid)
			}
			if tt.wantValid && alt.Feet != tt.wantFeet {
				t.Errorf("Feet = %d, want %d", alt.Feet, tt.wantFeet)
			}
		})
	}
}

func TestParseMissingAircraftArray(t *testing.T) {
	doc, err := Parse([]byte(`{"now": 1698796800}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Observations) != 0 {
		t.Errorf("got %d observations, want 0", len(doc.Observations))
	}
}

func TestParseMissingTimestamp(t *testing.T) {
	doc, err := Parse([]byte(`{"aircraft": [{"hex": "abc123"}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.HasTimestamp {
		t.Error("HasTimestamp = true, want false")
	}
	// The observation still contributes to the aircraft dimension even
	// though it can never become a position row.
	if len(doc.Observations) != 1 {
		t.Errorf("got %d observations, want 1", len(doc.Observations))
	}
}

func TestParseMalformedJSON(t *testing.T) {
	if _, err := Parse([]byte(`{"now": 1698796800, "aircraft": [`)); err == nil {
		t.Error("Parse of truncated JSON succeeded, want error")
	}
}

func TestParseSkipsBadAircraftEntries(t *testing.T) {
	data := []byte(`{"now": 1, "aircraft": [
		{"hex": "good01"},
		{"hex": 42, "lat": "oops"},
		{"hex": "good02"}
	]}`)

	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Observations) != 2 {
		t.Fatalf("got %d observations, want 2: %+v", len(doc.Observations), doc.Observations)
	}
	if doc.Observations[0].ICAO != "good01" || doc.Observations[1].ICAO != "good02" {
		t.Errorf("observations = %+v", doc.Observations)
	}
}
