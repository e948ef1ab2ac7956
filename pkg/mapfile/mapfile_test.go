package mapfile

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

func TestEncodeDecode(t *testing.T) {
	doc := &Document{
		Metadata: Metadata{
			Name:       "offline_map_test",
			Bounds:     tilemath.GeoBounds{North: 1, South: 0, East: 1, West: 0},
			MinZoom:    5,
			MaxZoom:    6,
			TileCount:  1,
			ExportDate: time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC),
			Format:     FormatJSON,
			Version:    FormatVersion,
		},
		Tiles: []TileEntry{NewTileEntry(tilemath.TileCoordinate{X: 16, Y: 15, Z: 5}, []byte{0x89, 'P', 'N', 'G'})},
	}

	data, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Contains(data, []byte(`"exportDate": "2026-10-01T12:00:00Z"`)) {
		t.Fatalf("export date is not ISO-8601: %s", data)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Metadata.Version != FormatVersion || decoded.Metadata.Format != FormatJSON {
		t.Fatalf("unexpected metadata %+v", decoded.Metadata)
	}

	payload, err := decoded.Tiles[0].Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if !bytes.Equal(payload, []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("payload mismatch: %v", payload)
	}
}

func TestDecodeMalformed(t *testing.T) {
	inputs := []string{
		``,
		`not json`,
		`{"metadata": {}}`,
		`{"tiles": []}`,
		`{"metadata": {}, "tiles": null}`,
		`{"metadata": {}, "tiles": {"x": 1}}`,
		`{"metadata": {}, "tiles": []} {}`,
		`{"metadata": {"minZoom": -1}, "tiles": []}`,
		`{"metadata": {"format": "tar"}, "tiles": []}`,
	}

	for _, in := range inputs {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrMalformedDocument) {
			t.Fatalf("expected ErrMalformedDocument for %q, got %v", in, err)
		}
	}
}

func TestTileEntryBadPayload(t *testing.T) {
	if _, err := (TileEntry{X: 0, Y: 0, Z: 0, Data: "!!"}).Bytes(); err == nil {
		t.Fatalf("expected base64 error")
	}
	if _, err := (TileEntry{X: 5, Y: 0, Z: 1, Data: ""}).Bytes(); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"json":             FormatJSON,
		"JSON":             FormatJSON,
		"offline_map.json": FormatJSON,
		"area.mbtiles":     FormatMBTiles,
		"zip":              FormatZIP,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	var unsupported *UnsupportedFormatError
	if _, err := ParseFormat("tiff"); !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedFormatError, got %v", err)
	}

	if !FormatJSON.Supported() || FormatZIP.Supported() || FormatMBTiles.Supported() {
		t.Fatalf("only json should be supported")
	}
}

func TestEstimateSize(t *testing.T) {
	e := EstimateSize(1024)
	if e.EstimatedBytes != 1024*20*1024 || e.EstimatedMB != 20 {
		t.Fatalf("unexpected estimate %+v", e)
	}
}
