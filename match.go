package rtree

import (
	"encoding/binary"
	"math"
	"sync"
)

// This file is MATCH argument decoding and the geometry-callback registry
// (spec.md §4.10). A MATCH constraint's right-hand side is an opaque blob
// built by EncodeMatchArg and torn down by DecodeMatchArg; the callback and
// its context travel through package-level handle tables since neither a
// Go function value nor an arbitrary context value can be serialized
// verbatim into the blob the way the original C struct embeds a function
// pointer.

// GeometryFunc is a registered geometry predicate: given the query context
// and a cell's 2*ndim bounding coordinates, it reports whether the cell
// overlaps (internal) or matches (leaf) the query.
type GeometryFunc func(ctx interface{}, ndim int, coords []float64) (bool, error)

var (
	fnMu         sync.RWMutex
	fnByName     = map[string]uint64{}
	fnByHandle   = map[uint64]GeometryFunc{}
	nextFnHandle uint64 = 1
)

// RegisterGeometryCallback names fn for later use as a MATCH right-hand
// side (§6 "Geometry-callback registration"). Re-registering a name
// replaces its callback.
func RegisterGeometryCallback(name string, fn GeometryFunc) error {
	if name == "" {
		return argumentf("geometry callback name must not be empty")
	}
	if fn == nil {
		return argumentf("geometry callback %q: nil function", name)
	}
	fnMu.Lock()
	defer fnMu.Unlock()
	h, ok := fnByName[name]
	if !ok {
		h = nextFnHandle
		nextFnHandle++
		fnByName[name] = h
	}
	fnByHandle[h] = fn
	return nil
}

func lookupGeometryByName(name string) (uint64, bool) {
	fnMu.RLock()
	defer fnMu.RUnlock()
	h, ok := fnByName[name]
	return h, ok
}

func lookupGeometryByHandle(h uint64) (GeometryFunc, bool) {
	fnMu.RLock()
	defer fnMu.RUnlock()
	fn, ok := fnByHandle[h]
	return fn, ok
}

var (
	ctxMu      sync.Mutex
	ctxByID    = map[uint64]interface{}{}
	nextCtxID  uint64 = 1
)

func allocCtx(ctx interface{}) uint64 {
	ctxMu.Lock()
	defer ctxMu.Unlock()
	id := nextCtxID
	nextCtxID++
	ctxByID[id] = ctx
	return id
}

func lookupCtx(id uint64) (interface{}, bool) {
	ctxMu.Lock()
	defer ctxMu.Unlock()
	v, ok := ctxByID[id]
	return v, ok
}

func freeCtx(id uint64) {
	ctxMu.Lock()
	defer ctxMu.Unlock()
	delete(ctxByID, id)
}

// matchHeaderSize is magic(4) + fn handle(8) + ctx handle(8) + nParam(4).
const matchHeaderSize = 4 + 8 + 8 + 4

// MatchArg is a decoded MATCH right-hand side: the resolved callback, its
// opaque context, and its scalar parameters. Release must be called
// exactly once, when the owning cursor releases its constraints (§4.10).
type MatchArg struct {
	Fn       GeometryFunc
	Ctx      interface{}
	Params   []float64
	ctxID    uint64
	released bool
}

// Release disposes of the context handle this MatchArg holds. Safe to call
// more than once; only the first call has effect.
func (m *MatchArg) Release() {
	if m.released {
		return
	}
	m.released = true
	freeCtx(m.ctxID)
}

// EncodeMatchArg builds a MATCH blob for the named geometry callback,
// embedding ctx and params behind handle indirection (§6).
func EncodeMatchArg(name string, ctx interface{}, params []float64) ([]byte, error) {
	fnHandle, ok := lookupGeometryByName(name)
	if !ok {
		return nil, argumentf("geometry callback %q not registered", name)
	}
	ctxID := allocCtx(ctx)

	blob := make([]byte, matchHeaderSize+len(params)*8)
	binary.BigEndian.PutUint32(blob[0:4], matchBlobMagic)
	binary.BigEndian.PutUint64(blob[4:12], fnHandle)
	binary.BigEndian.PutUint64(blob[12:20], ctxID)
	binary.BigEndian.PutUint32(blob[20:24], uint32(len(params)))
	for i, p := range params {
		binary.BigEndian.PutUint64(blob[matchHeaderSize+i*8:matchHeaderSize+(i+1)*8], math.Float64bits(p))
	}
	return blob, nil
}

// DecodeMatchArg validates and unpacks a MATCH blob (§4.10): the blob size
// must exactly match matchHeaderSize + nParam*8 (the header's own nParam
// field already accounts for the classic "one trailing scalar included in
// the header" sizing quirk the spec's "header + (nParam−1)·sizeof(scalar)"
// phrasing describes — the two formulas are arithmetically identical), and
// the magic must match.
func DecodeMatchArg(blob []byte) (*MatchArg, error) {
	if len(blob) < matchHeaderSize {
		return nil, argumentf("MATCH blob too short: %d bytes", len(blob))
	}
	magic := binary.BigEndian.Uint32(blob[0:4])
	if magic != matchBlobMagic {
		return nil, argumentf("MATCH blob: bad magic %#x", magic)
	}
	fnHandle := binary.BigEndian.Uint64(blob[4:12])
	ctxID := binary.BigEndian.Uint64(blob[12:20])
	nParam := int(binary.BigEndian.Uint32(blob[20:24]))

	want := matchHeaderSize + nParam*8
	if len(blob) != want {
		return nil, argumentf("MATCH blob: size %d != expected %d for %d params", len(blob), want, nParam)
	}

	fn, ok := lookupGeometryByHandle(fnHandle)
	if !ok {
		return nil, argumentf("MATCH blob: unknown geometry handle %d", fnHandle)
	}
	ctx, ok := lookupCtx(ctxID)
	if !ok {
		return nil, argumentf("MATCH blob: unknown context handle %d", ctxID)
	}

	params := make([]float64, nParam)
	for i := range params {
		off := matchHeaderSize + i*8
		params[i] = math.Float64frombits(binary.BigEndian.Uint64(blob[off : off+8]))
	}
	return &MatchArg{Fn: fn, Ctx: ctx, Params: params, ctxID: ctxID}, nil
}

func init() {
	_ = RegisterGeometryCallback("circle", circleMatch)
}

// circleMatch is the built-in "circle" demo callback (grounded on the
// rtree extension's own demo geometry callback): ctx carries the query
// parameters [center0, center1, radius]; it reports whether a
// 2-dimensional cell's bounding box comes within radius of the center,
// i.e. whether the nearest point of the box to the center lies inside the
// circle.
func circleMatch(ctx interface{}, ndim int, coords []float64) (bool, error) {
	params, ok := ctx.([]float64)
	if !ok || len(params) != 3 {
		return false, argumentf("circle: expected context [cx, cy, radius]")
	}
	if ndim != 2 || len(coords) != 4 {
		return false, argumentf("circle: expects 2 dimensions, got %d", ndim)
	}
	cx, cy, radius := params[0], params[1], params[2]
	nx := clamp(cx, coords[0], coords[1])
	ny := clamp(cy, coords[2], coords[3])
	dx, dy := cx-nx, cy-ny
	return dx*dx+dy*dy <= radius*radius, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
