// Package world provides the town tile grid, its generation, and the
// single-step movement heuristic agents use to get around it.
package world

import "fmt"

// Position is a grid cell coordinate. X grows right, Y grows down.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// String returns "x,y".
func (p Position) String() string {
	return fmt.Sprintf("%d,%d", p.X, p.Y)
}

// Tile classifies a grid cell.
type Tile uint8

const (
	TileGrass Tile = iota
	TilePath
	TileWall
	TileWater
	TileFloor
	TileHouse
	TileOffice
)

var tileNames = [...]string{"GRASS", "PATH", "WALL", "WATER", "FLOOR", "HOUSE", "OFFICE"}

// TileName returns the display label for a tile.
func TileName(t Tile) string {
	if int(t) < len(tileNames) {
		return tileNames[t]
	}
	return "UNKNOWN"
}

// MarshalText encodes a tile as its label.
func (t Tile) MarshalText() ([]byte, error) {
	return []byte(TileName(t)), nil
}

// UnmarshalText decodes a tile label.
func (t *Tile) UnmarshalText(b []byte) error {
	for i, name := range tileNames {
		if name == string(b) {
			*t = Tile(i)
			return nil
		}
	}
	return fmt.Errorf("unknown tile %q", b)
}

// Walkable reports whether agents may stand on the tile.
func (t Tile) Walkable() bool {
	return t != TileWall && t != TileWater
}

// Grid is the immutable tile layout. Rows are indexed [y][x].
type Grid struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Tiles  [][]Tile `json:"tiles"`
}

func newGrid(width, height int) *Grid {
	tiles := make([][]Tile, height)
	for y := range tiles {
		tiles[y] = make([]Tile, width)
	}
	return &Grid{Width: width, Height: height, Tiles: tiles}
}

// InBounds returns true if p lies inside the grid.
func (g *Grid) InBounds(p Position) bool {
	return p.X >= 0 && p.X < g.Width && p.Y >= 0 && p.Y < g.Height
}

// At returns the tile at p. Out-of-bounds cells read as walls.
func (g *Grid) At(p Position) Tile {
	if !g.InBounds(p) {
		return TileWall
	}
	return g.Tiles[p.Y][p.X]
}

// IsWalkable returns false outside bounds or on WALL/WATER.
func (g *Grid) IsWalkable(x, y int) bool {
	p := Position{X: x, Y: y}
	return g.InBounds(p) && g.At(p).Walkable()
}

// set writes a tile, silently ignoring out-of-bounds cells so layout code
// can run against any grid size.
func (g *Grid) set(x, y int, t Tile) {
	if x < 0 || x >= g.Width || y < 0 || y >= g.Height {
		return
	}
	g.Tiles[y][x] = t
}

// TileCounts returns the number of cells of each tile type.
func TileCounts(g *Grid) map[Tile]int {
	counts := make(map[Tile]int)
	for _, row := range g.Tiles {
		for _, t := range row {
			counts[t]++
		}
	}
	return counts
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d)", g.Width, g.Height)
}
