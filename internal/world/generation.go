// Town layout generation: fixed districts joined by corridors, with optional
// simplex-noise ponds scattered over open grass.
package world

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds grid generation parameters.
type GenConfig struct {
	Width  int
	Height int

	// Ponds are placed where normalized noise exceeds PondLevel.
	// Zero disables ponds entirely.
	Seed      int64
	PondLevel float64

	// Protected cells (and their 8 neighbours) never become water.
	Protected []Position
}

// DefaultGenConfig returns the stock 16x12 town with ponds disabled.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:  16,
		Height: 12,
	}
}

// Generate creates the deterministic town layout for the given size.
func Generate(width, height int) *Grid {
	return GenerateWithConfig(GenConfig{Width: width, Height: height})
}

// GenerateWithConfig creates the town layout and, when enabled, scenery ponds.
//
// Layout: residential corridors at x=1 and x=4 with houses every third row,
// an office corridor two cells in from the right edge, a central FLOOR plaza
// with a bank, horizontal corridors at 1/6, 1/2 and 3/4 of the height, and a
// WALL border.
func GenerateWithConfig(cfg GenConfig) *Grid {
	w, h := cfg.Width, cfg.Height
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	g := newGrid(w, h)

	// Residential corridors.
	for y := 0; y < h; y++ {
		g.set(1, y, TilePath)
		g.set(4, y, TilePath)
	}

	// Office corridor.
	officeX := w - 3
	for y := 0; y < h; y++ {
		g.set(officeX, y, TilePath)
	}

	// Horizontal connectors.
	for _, row := range connectorRows(h) {
		for x := 0; x < w; x++ {
			g.set(x, row, TilePath)
		}
	}

	// Plaza.
	for y := h / 3; y < 2*h/3; y++ {
		for x := 3 * w / 8; x < 5*w/8; x++ {
			g.set(x, y, TileFloor)
		}
	}

	for y := 1; y < h-1; y++ {
		if y%3 == 1 {
			g.set(1, y, TileHouse)
			g.set(4, y, TileHouse)
		}
	}

	for _, row := range officeRows(h) {
		g.set(officeX, row, TileOffice)
	}
	g.set(w/2, h/2, TileOffice) // bank

	if cfg.PondLevel > 0 {
		placePonds(g, cfg)
	}

	// Border.
	for x := 0; x < w; x++ {
		g.set(x, 0, TileWall)
		g.set(x, h-1, TileWall)
	}
	for y := 0; y < h; y++ {
		g.set(0, y, TileWall)
		g.set(w-1, y, TileWall)
	}

	return g
}

func connectorRows(h int) []int {
	return dedupe([]int{h / 6, h / 2, 3 * h / 4})
}

func officeRows(h int) []int {
	return dedupe([]int{h / 6, 5 * h / 12, 3 * h / 4})
}

func dedupe(rows []int) []int {
	seen := make(map[int]bool, len(rows))
	out := rows[:0]
	for _, r := range rows {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// placePonds converts open grass to water where noise is high. A cell only
// floods when all four orthogonal neighbours are grass, so corridors, plaza
// edges and building entrances stay reachable.
func placePonds(g *Grid, cfg GenConfig) {
	noise := opensimplex.NewNormalized(cfg.Seed)

	protected := make(map[Position]bool)
	for _, p := range cfg.Protected {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				protected[Position{X: p.X + dx, Y: p.Y + dy}] = true
			}
		}
	}

	var flood []Position
	for y := 1; y < g.Height-1; y++ {
		for x := 1; x < g.Width-1; x++ {
			p := Position{X: x, Y: y}
			if g.At(p) != TileGrass || protected[p] {
				continue
			}
			if !openGrass(g, p) {
				continue
			}
			if octaveNoise(noise, float64(x), float64(y), 2, 0.35, 0.5) > cfg.PondLevel {
				flood = append(flood, p)
			}
		}
	}

	for _, p := range flood {
		g.set(p.X, p.Y, TileWater)
	}
}

func openGrass(g *Grid, p Position) bool {
	for _, n := range Neighbors(p) {
		if g.At(n) != TileGrass {
			return false
		}
	}
	return true
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
