package world

import (
	"context"
	"errors"
	"fmt"

	"voxelterrain.dev/internal/sim/catalogs"
	"voxelterrain.dev/internal/sim/world/terrain/grid"
)

type blockReq struct {
	X, Y, Z int
	Resp    chan blockResp
}

type blockResp struct {
	Cell grid.Cell
	OK   bool
}

// EditOp is the kind of block edit requested through RequestEdit.
type EditOp string

const (
	EditAdd    EditOp = "add"
	EditRemove EditOp = "remove"
)

type EditRequest struct {
	Op    EditOp
	X     int
	Y     int
	Z     int
	Block catalogs.BlockID
	Actor string
}

type editReq struct {
	Req  EditRequest
	Resp chan editResp
}

type editResp struct {
	Changed bool
	Err     error
}

type doReq struct {
	Fn   func(w *World) error
	Resp chan error
}

// RequestBlock reads a cell from the world loop goroutine.
func (w *World) RequestBlock(ctx context.Context, x, y, z int) (grid.Cell, bool, error) {
	if w == nil || w.blockReq == nil {
		return grid.Cell{}, false, errors.New("block query not available")
	}
	if w.stopped() {
		return grid.Cell{}, false, ErrClosed
	}
	req := blockReq{X: x, Y: y, Z: z, Resp: make(chan blockResp, 1)}
	select {
	case w.blockReq <- req:
	case <-w.stop:
		return grid.Cell{}, false, ErrClosed
	case <-ctx.Done():
		return grid.Cell{}, false, ctx.Err()
	}
	select {
	case resp := <-req.Resp:
		return resp.Cell, resp.OK, nil
	case <-w.stop:
		return grid.Cell{}, false, ErrClosed
	case <-ctx.Done():
		return grid.Cell{}, false, ctx.Err()
	}
}

func (w *World) handleBlockReq(req blockReq) {
	c, ok := w.GetBlock(req.X, req.Y, req.Z)
	select {
	case req.Resp <- blockResp{Cell: c, OK: ok}:
	default:
	}
}

// RequestEdit applies an add or remove on the world loop goroutine.
func (w *World) RequestEdit(ctx context.Context, e EditRequest) (bool, error) {
	if w == nil || w.editReq == nil {
		return false, errors.New("edit not available")
	}
	if w.stopped() {
		return false, ErrClosed
	}
	req := editReq{Req: e, Resp: make(chan editResp, 1)}
	select {
	case w.editReq <- req:
	case <-w.stop:
		return false, ErrClosed
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case resp := <-req.Resp:
		return resp.Changed, resp.Err
	case <-w.stop:
		return false, ErrClosed
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (w *World) handleEditReq(req editReq) {
	resp := editResp{}
	defer func() {
		select {
		case req.Resp <- resp:
		default:
		}
	}()
	e := req.Req
	switch e.Op {
	case EditAdd:
		resp.Changed, resp.Err = w.addBlock(e.X, e.Y, e.Z, e.Block, e.Actor)
	case EditRemove:
		resp.Changed, resp.Err = w.removeBlock(e.X, e.Y, e.Z, e.Actor)
	default:
		resp.Err = fmt.Errorf("unknown edit op %q", e.Op)
	}
}

// Do runs fn on the world loop goroutine and returns its error. fn may call
// any World method directly.
func (w *World) Do(ctx context.Context, fn func(w *World) error) error {
	if w == nil || w.doReq == nil {
		return errors.New("world loop not available")
	}
	if w.stopped() {
		return ErrClosed
	}
	req := doReq{Fn: fn, Resp: make(chan error, 1)}
	select {
	case w.doReq <- req:
	case <-w.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.Resp:
		return err
	case <-w.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) handleDoReq(req doReq) {
	err := req.Fn(w)
	select {
	case req.Resp <- err:
	default:
	}
}

// RequestChunkMeshes exports every loaded chunk from the world loop.
func (w *World) RequestChunkMeshes(ctx context.Context) ([]ChunkMesh, error) {
	var out []ChunkMesh
	err := w.Do(ctx, func(w *World) error {
		out = w.ChunkMeshes()
		return nil
	})
	return out, err
}

func (w *World) stopped() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}
