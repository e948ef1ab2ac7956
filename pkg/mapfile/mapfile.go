// Package mapfile defines the portable document used to move cached tiles
// between installations.
package mapfile

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jaennil/guide_helper/backend/offline/pkg/tilemath"
)

const FormatVersion = "1.0.0"

// averageTileSize is what a satellite imagery tile weighs on average.
const averageTileSize = 20 * 1024

type Format string

const (
	FormatJSON    Format = "json"
	FormatZIP     Format = "zip"
	FormatMBTiles Format = "mbtiles"
)

// Supported reports whether documents can actually be produced in f.
func (f Format) Supported() bool {
	return f == FormatJSON
}

var ErrMalformedDocument = errors.New("malformed map document")

// UnsupportedFormatError is returned for formats that are known by name but
// have no implementation, and for names that are not formats at all.
type UnsupportedFormatError struct {
	Format Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported map file format: %q", string(e.Format))
}

// ParseFormat accepts a format name or a file name with extension.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}

	switch f := Format(name); f {
	case FormatJSON, FormatZIP, FormatMBTiles:
		return f, nil
	default:
		return "", &UnsupportedFormatError{Format: f}
	}
}

type Metadata struct {
	Name       string             `json:"name"`
	Bounds     tilemath.GeoBounds `json:"bounds"`
	MinZoom    int                `json:"minZoom" validate:"gte=0,lte=30"`
	MaxZoom    int                `json:"maxZoom" validate:"gte=0,lte=30"`
	TileCount  int                `json:"tileCount" validate:"gte=0"`
	ExportDate time.Time          `json:"exportDate"`
	Format     Format             `json:"format" validate:"omitempty,oneof=json zip mbtiles"`
	Version    string             `json:"version" validate:"omitempty,max=32"`
}

type TileEntry struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Z    int    `json:"z"`
	Data string `json:"data"`
}

func NewTileEntry(c tilemath.TileCoordinate, data []byte) TileEntry {
	return TileEntry{
		X:    c.X,
		Y:    c.Y,
		Z:    c.Z,
		Data: base64.StdEncoding.EncodeToString(data),
	}
}

func (e TileEntry) Coordinate() tilemath.TileCoordinate {
	return tilemath.TileCoordinate{X: e.X, Y: e.Y, Z: e.Z}
}

// Bytes decodes the base64 payload.
func (e TileEntry) Bytes() ([]byte, error) {
	if !e.Coordinate().Valid() {
		return nil, fmt.Errorf("tile %s outside the tile pyramid", e.Coordinate())
	}
	data, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		return nil, fmt.Errorf("tile %s: bad base64 payload: %w", e.Coordinate(), err)
	}
	return data, nil
}

var validate = validator.New()

type Document struct {
	Metadata Metadata    `json:"metadata"`
	Tiles    []TileEntry `json:"tiles"`
}

func Encode(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses a whole document. Nothing is returned unless the document is
// well formed, so callers never act on a partial document.
func Decode(data []byte) (*Document, error) {
	var raw struct {
		Metadata *Metadata       `json:"metadata"`
		Tiles    json.RawMessage `json:"tiles"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformedDocument)
	}
	if raw.Metadata == nil {
		return nil, fmt.Errorf("%w: missing metadata", ErrMalformedDocument)
	}
	if err := validate.Struct(raw.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrMalformedDocument, err)
	}
	if len(raw.Tiles) == 0 || bytes.Equal(raw.Tiles, []byte("null")) {
		return nil, fmt.Errorf("%w: missing tiles", ErrMalformedDocument)
	}

	var tiles []TileEntry
	if err := json.Unmarshal(raw.Tiles, &tiles); err != nil {
		return nil, fmt.Errorf("%w: tiles: %v", ErrMalformedDocument, err)
	}

	return &Document{Metadata: *raw.Metadata, Tiles: tiles}, nil
}

type Estimate struct {
	TileCount      int     `json:"tile_count"`
	EstimatedBytes int64   `json:"estimated_bytes"`
	EstimatedMB    float64 `json:"estimated_mb"`
}

// EstimateSize guesses the export size of tileCount tiles.
func EstimateSize(tileCount int) Estimate {
	size := int64(tileCount) * averageTileSize
	return Estimate{
		TileCount:      tileCount,
		EstimatedBytes: size,
		EstimatedMB:    float64(size) / (1024 * 1024),
	}
}
