package world

import (
	"fmt"
	"time"

	"voxelterrain.dev/internal/sim/world/terrain/grid"
)

// LoadMode selects where chunk generation runs.
type LoadMode int

const (
	// LoadSync builds a chunk inline as soon as it becomes visible.
	LoadSync LoadMode = iota
	// LoadDeferred queues builds and drains the queue within the tick budget.
	LoadDeferred
	// LoadBackground hands builds to a single background worker.
	LoadBackground
)

func (m LoadMode) String() string {
	switch m {
	case LoadSync:
		return "sync"
	case LoadDeferred:
		return "deferred"
	case LoadBackground:
		return "background"
	default:
		return fmt.Sprintf("LoadMode(%d)", int(m))
	}
}

type WorldConfig struct {
	ID         string
	TickRateHz int

	ChunkSize    grid.Size
	DrawDistance int
	LoadMode     LoadMode
	// LoadBudget bounds deferred generation per tick. At least one queued
	// chunk is built every tick regardless.
	LoadBudget time.Duration
	// EvictHysteresis keeps chunks this many rings past the draw distance
	// before evicting them. 0 evicts as soon as a chunk leaves the window.
	EvictHysteresis int
	// StrictMeshing fails chunk builds on unknown block ids instead of
	// skipping those cells.
	StrictMeshing bool
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.ChunkSize.Width == 0 && c.ChunkSize.Height == 0 {
		c.ChunkSize = grid.Size{Width: 32, Height: 32}
	}
	if c.DrawDistance < 0 {
		c.DrawDistance = 0
	}
	if c.LoadBudget <= 0 {
		c.LoadBudget = 4 * time.Millisecond
	}
	if c.EvictHysteresis < 0 {
		c.EvictHysteresis = 0
	}
}

func (c WorldConfig) validate() error {
	if err := c.ChunkSize.Validate(); err != nil {
		return err
	}
	switch c.LoadMode {
	case LoadSync, LoadDeferred, LoadBackground:
	default:
		return fmt.Errorf("unknown load mode %d", int(c.LoadMode))
	}
	return nil
}
