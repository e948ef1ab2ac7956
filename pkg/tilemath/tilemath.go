// Package tilemath converts geographic areas into slippy-map tile indices.
package tilemath

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxLatitude is the Web Mercator latitude limit. Projection diverges beyond it.
const MaxLatitude = 85.05112877980659

// MaxZoom is the deepest zoom level accepted anywhere in the service.
const MaxZoom = 22

var (
	ErrInvalidBounds = errors.New("invalid bounds")
	ErrInvalidZoom   = errors.New("invalid zoom range")
	ErrInvalidKey    = errors.New("invalid tile key")
)

type TileCoordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Key is the store key of the tile, "{z}/{x}/{y}".
func (c TileCoordinate) Key() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

func (c TileCoordinate) String() string {
	return c.Key()
}

// Valid reports whether the coordinate lies inside the pyramid: 0 <= x,y < 2^z.
func (c TileCoordinate) Valid() bool {
	if c.Z < 0 || c.Z > MaxZoom {
		return false
	}
	n := 1 << uint(c.Z)
	return c.X >= 0 && c.Y >= 0 && c.X < n && c.Y < n
}

// Bound is the geographic extent of the tile.
func (c TileCoordinate) Bound() orb.Bound {
	return maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Z)).Bound()
}

// ParseKey reverses Key.
func ParseKey(key string) (TileCoordinate, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return TileCoordinate{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return TileCoordinate{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
		nums[i] = n
	}

	c := TileCoordinate{Z: nums[0], X: nums[1], Y: nums[2]}
	if !c.Valid() {
		return TileCoordinate{}, fmt.Errorf("%w: %q out of range", ErrInvalidKey, key)
	}

	return c, nil
}

type GeoBounds struct {
	North float64 `json:"north" form:"north" binding:"gte=-90,lte=90"`
	South float64 `json:"south" form:"south" binding:"gte=-90,lte=90"`
	East  float64 `json:"east" form:"east" binding:"gte=-180,lte=180"`
	West  float64 `json:"west" form:"west" binding:"gte=-180,lte=180"`
}

// Validate enforces the caller contract of TilesForBounds: north > south,
// west < east (no antimeridian crossing), latitudes inside the Mercator range.
func (b GeoBounds) Validate() error {
	if !(b.North > b.South) {
		return fmt.Errorf("%w: north %v must be greater than south %v", ErrInvalidBounds, b.North, b.South)
	}
	if !(b.West < b.East) {
		return fmt.Errorf("%w: west %v must be less than east %v", ErrInvalidBounds, b.West, b.East)
	}
	if b.North > MaxLatitude || b.South < -MaxLatitude {
		return fmt.Errorf("%w: latitude outside +-%v", ErrInvalidBounds, MaxLatitude)
	}
	if b.West < -180 || b.East > 180 {
		return fmt.Errorf("%w: longitude outside +-180", ErrInvalidBounds)
	}
	return nil
}

// Clamped returns the bounds with latitudes pulled into the Mercator range.
func (b GeoBounds) Clamped() GeoBounds {
	b.North = ClampLatitude(b.North)
	b.South = ClampLatitude(b.South)
	return b
}

func (b GeoBounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

func FromBound(b orb.Bound) GeoBounds {
	return GeoBounds{
		North: b.Top(),
		South: b.Bottom(),
		East:  b.Right(),
		West:  b.Left(),
	}
}

func ValidateZoomRange(minZoom, maxZoom int) error {
	if minZoom < 0 || maxZoom > MaxZoom || minZoom > maxZoom {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidZoom, minZoom, maxZoom)
	}
	return nil
}

func ClampLatitude(lat float64) float64 {
	return math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
}

// LatLngToTile projects a point onto the tile grid at zoom. lat must already be
// inside [-MaxLatitude, MaxLatitude]. The east and south edges of the map
// belong to the last column and row, so x and y stay inside [0, 2^zoom).
func LatLngToTile(lat, lng float64, zoom int) (x, y int) {
	n := math.Exp2(float64(zoom))
	latRad := lat * math.Pi / 180

	x = clampIndex(math.Floor((lng+180)/360*n), n)
	y = clampIndex(math.Floor((1-math.Asinh(math.Tan(latRad))/math.Pi)/2*n), n)
	return x, y
}

func clampIndex(v, n float64) int {
	return int(math.Max(0, math.Min(n-1, v)))
}

// TilesForBounds enumerates every tile covering bounds for each zoom in
// [minZoom, maxZoom], ordered by zoom, then x, then y.
func TilesForBounds(bounds GeoBounds, minZoom, maxZoom int) []TileCoordinate {
	tiles := make([]TileCoordinate, 0, CountForBounds(bounds, minZoom, maxZoom))

	for z := minZoom; z <= maxZoom; z++ {
		minX, minY := LatLngToTile(bounds.North, bounds.West, z)
		maxX, maxY := LatLngToTile(bounds.South, bounds.East, z)

		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				tiles = append(tiles, TileCoordinate{X: x, Y: y, Z: z})
			}
		}
	}

	return tiles
}

// CountForBounds is len(TilesForBounds(...)) without building the slice.
func CountForBounds(bounds GeoBounds, minZoom, maxZoom int) int {
	total := 0
	for z := minZoom; z <= maxZoom; z++ {
		minX, minY := LatLngToTile(bounds.North, bounds.West, z)
		maxX, maxY := LatLngToTile(bounds.South, bounds.East, z)
		if maxX < minX || maxY < minY {
			continue
		}
		total += (maxX - minX + 1) * (maxY - minY + 1)
	}
	return total
}
