// Package session coordinates chunk selection, point retrieval, and
// commit-on-navigation for annotating a large volumetric image.
//
// A Session owns the current chunk descriptor and the transient working set
// of newly placed chunk-local points. Navigation commits the working set to
// the annotation store, picks a fresh random chunk, and hands the sub-volume
// plus its stored points to the configured presentation bridge. The store is
// re-read on every load and never cached, so edits made to the table by
// external tools are picked up on the next navigation.
package session

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"ptannotator3d/internal/models"
	"ptannotator3d/pkg/store"
	"ptannotator3d/pkg/volume"
)

// State is the session's lifecycle state.
type State int

const (
	// Idle means no chunk has been loaded yet.
	Idle State = iota

	// ChunkLoaded means a chunk and its points are presented and the working
	// set accepts new points.
	ChunkLoaded
)

var (
	// ErrNoChunk is returned by operations that need a loaded chunk.
	ErrNoChunk = errors.New("no chunk loaded")

	// ErrLoadInFlight is returned when a navigation event arrives while a
	// chunk load is already running; the event is ignored, never interleaved.
	ErrLoadInFlight = errors.New("chunk load already in flight")

	// ErrUncommitted is returned by Load when the working set still holds
	// unsaved points. Explicit loads are a two-step API: Commit, then Load.
	ErrUncommitted = errors.New("working set has uncommitted points")
)

// VolumeReader is the image access the session needs: extents plus
// random-access sub-volume reads.
type VolumeReader interface {
	Shape() models.IVec3
	Channels() int
	ReadRegion(channel int, origin, shape models.IVec3) (*volume.Chunk, error)
}

// PointStore is the annotation table access the session needs.
type PointStore interface {
	ReadAll() ([]models.Record, error)
	Append([]models.Record) error
}

// BoxLogger records the outline of each committed chunk.
type BoxLogger interface {
	Append(models.ChunkDescriptor) error
}

// Bridge receives each freshly loaded chunk for display. Implementations
// must not call back into the session from Present; such a call is treated
// as a second navigation event and fails with ErrLoadInFlight.
type Bridge interface {
	Present(*ChunkView)
}

// ChunkView is the display payload for one loaded chunk.
type ChunkView struct {
	// Desc is the loaded descriptor; its shape is the clipped extent
	// actually covered, which at image boundaries may be smaller than the
	// configured chunk shape.
	Desc models.ChunkDescriptor

	// Chunk is the sub-volume for the primary channel.
	Chunk *volume.Chunk

	// CoChunk is the colocalisation channel's sub-volume, or nil when no
	// second channel is configured.
	CoChunk *volume.Chunk

	// StorePoints are the already-persisted annotations inside the chunk,
	// translated to the chunk-local frame.
	StorePoints []models.Record

	// Contrast is a quantile-based display contrast pair for the chunk.
	Contrast [2]float64
}

// Options configures a Session.
type Options struct {
	// ChunkShape is the requested chunk extent per axis; axes larger than
	// the image are clamped to its extents.
	ChunkShape models.IVec3

	// Channel and CoChannel select the primary and colocalisation channels.
	// Both are ignored for images without a channel axis, and CoChannel is
	// ignored when equal to Channel.
	Channel   int
	CoChannel int

	// Rand drives random origin selection; seeded from the clock when nil.
	Rand *rand.Rand

	// Bridge, when set, receives every loaded chunk.
	Bridge Bridge

	// BoxLog, when set, records each committed chunk's outline.
	BoxLog BoxLogger

	// Prefetch reads the next random chunk in the background after each
	// navigation; it is consumed only if the settings are unchanged.
	Prefetch bool

	// ContrastQuantiles are the low/high quantiles for the view's contrast
	// estimate; defaults to {0.01, 0.99}.
	ContrastQuantiles [2]float64
}

// prefetched is a background-loaded candidate for the next navigation.
// requested carries the pre-clip chunk shape so a settings change since the
// prefetch started invalidates it.
type prefetched struct {
	requested models.IVec3
	desc      models.ChunkDescriptor
	chunk     *volume.Chunk
	co        *volume.Chunk
}

// Session is the annotation orchestrator. All methods are safe for use from
// a single interaction goroutine plus the internal prefetch goroutine;
// navigation is never interleaved.
type Session struct {
	vol VolumeReader
	st  PointStore

	mu       sync.Mutex
	opts     Options
	inFlight bool
	state    State
	desc     models.ChunkDescriptor
	working  []models.Vec3
	next     *prefetched
}

// New creates a session over the given volume and store handles. Resource
// handles are explicit; the session keeps no process-wide state.
func New(vol VolumeReader, st PointStore, opts Options) (*Session, error) {
	if vol == nil || st == nil {
		return nil, fmt.Errorf("session needs a volume and a store")
	}
	if err := validShape(opts.ChunkShape); err != nil {
		return nil, err
	}
	if err := validChannels(vol, opts.Channel, opts.CoChannel); err != nil {
		return nil, err
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.ContrastQuantiles == [2]float64{} {
		opts.ContrastQuantiles = [2]float64{0.01, 0.99}
	}
	return &Session{vol: vol, st: st, opts: opts}, nil
}

func validShape(shape models.IVec3) error {
	for i := 0; i < 3; i++ {
		if shape[i] <= 0 {
			return fmt.Errorf("chunk shape axis %d must be positive, got %d", i, shape[i])
		}
	}
	return nil
}

func validChannels(vol VolumeReader, channel, co int) error {
	n := vol.Channels()
	if n <= 1 {
		return nil
	}
	if channel < 0 || channel >= n {
		return &volume.AccessError{Path: "", Msg: fmt.Sprintf("channel %d out of range [0,%d)", channel, n)}
	}
	if co < 0 || co >= n {
		return &volume.AccessError{Path: "", Msg: fmt.Sprintf("colocalisation channel %d out of range [0,%d)", co, n)}
	}
	return nil
}

// State reports the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Descriptor returns the current chunk descriptor; ok is false while Idle.
func (s *Session) Descriptor() (desc models.ChunkDescriptor, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc, s.state == ChunkLoaded
}

// Working returns a copy of the chunk-local working point set.
func (s *Session) Working() []models.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Vec3(nil), s.working...)
}

// Place appends a chunk-local point to the working set. The point must lie
// inside [0, shape) of the current chunk.
func (s *Session) Place(p models.Vec3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ChunkLoaded {
		return ErrNoChunk
	}
	for i := 0; i < 3; i++ {
		if p[i] < 0 || p[i] >= float64(s.desc.Shape[i]) {
			return &volume.BoundsError{
				Origin: s.desc.Origin, Shape: s.desc.Shape,
				Msg: fmt.Sprintf("point %v outside chunk", p),
			}
		}
	}
	s.working = append(s.working, p)
	return nil
}

// Commit flushes the working set: each chunk-local point is translated to
// the global frame by the current origin and appended to the store. On
// failure the working set and descriptor are untouched so nothing is lost;
// the caller can retry. Committing an empty working set is a no-op.
func (s *Session) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrLoadInFlight
	}
	return s.commitLocked()
}

func (s *Session) commitLocked() error {
	if s.state != ChunkLoaded || len(s.working) == 0 {
		return nil
	}
	records := make([]models.Record, len(s.working))
	for i, p := range s.working {
		records[i] = models.Record{Pos: p.Add(s.desc.Origin)}
	}
	if err := s.st.Append(records); err != nil {
		return err
	}
	// The points are durable from here on: clear the working set before any
	// secondary bookkeeping so a box-log failure cannot cause a duplicate
	// append on retry.
	s.working = nil
	if s.opts.BoxLog != nil {
		if err := s.opts.BoxLog.Append(s.desc); err != nil {
			return err
		}
	}
	return nil
}

// Next is the commit-on-navigation event: commit the working set, pick a
// uniformly random chunk origin, load that chunk, and present it. A commit
// failure aborts the navigation with the prior chunk and working set intact.
func (s *Session) Next() (*ChunkView, error) {
	if err := s.beginLoad(); err != nil {
		return nil, err
	}
	defer s.endLoad()

	s.mu.Lock()
	if err := s.commitLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	pf := s.next
	s.next = nil
	shape := s.opts.ChunkShape
	channel, co := s.opts.Channel, s.opts.CoChannel
	// Use the prefetched chunk only if the settings it was read under still
	// hold. Store points are always re-read fresh in finishLoad.
	usePrefetch := pf != nil && pf.requested == shape && pf.desc.Channel == channel && pf.desc.CoChannel == co
	var desc models.ChunkDescriptor
	if !usePrefetch {
		desc = models.ChunkDescriptor{Origin: s.randOriginLocked(), Shape: s.chunkShapeLocked(), Channel: channel, CoChannel: co}
	}
	s.mu.Unlock()

	if usePrefetch {
		return s.finishLoad(pf.desc, pf.chunk, pf.co)
	}
	return s.readAndFinish(desc)
}

// Load loads an explicit descriptor. It does not commit: callers use Commit
// first (or Next), and Load fails with ErrUncommitted rather than silently
// dropping unsaved points.
func (s *Session) Load(desc models.ChunkDescriptor) (*ChunkView, error) {
	if err := s.beginLoad(); err != nil {
		return nil, err
	}
	defer s.endLoad()

	s.mu.Lock()
	if len(s.working) > 0 {
		s.mu.Unlock()
		return nil, ErrUncommitted
	}
	s.next = nil
	s.mu.Unlock()

	if err := validShape(desc.Shape); err != nil {
		return nil, err
	}
	if err := validChannels(s.vol, desc.Channel, desc.CoChannel); err != nil {
		return nil, err
	}
	return s.readAndFinish(desc)
}

// Reconfigure changes the chunk shape and channel selection. While a chunk
// is loaded this is a navigation: the working set is committed first and a
// fresh random chunk is loaded under the new settings, so no points are
// silently lost. While Idle it only updates the options and returns nil.
// A commit failure restores the previous settings.
func (s *Session) Reconfigure(shape models.IVec3, channel, coChannel int) (*ChunkView, error) {
	if err := validShape(shape); err != nil {
		return nil, err
	}
	if err := validChannels(s.vol, channel, coChannel); err != nil {
		return nil, err
	}
	if err := s.beginLoad(); err != nil {
		return nil, err
	}
	defer s.endLoad()

	s.mu.Lock()
	prev := s.opts
	s.opts.ChunkShape = shape
	s.opts.Channel = channel
	s.opts.CoChannel = coChannel
	s.next = nil
	if s.state != ChunkLoaded {
		s.mu.Unlock()
		return nil, nil
	}
	if err := s.commitLocked(); err != nil {
		s.opts = prev
		s.mu.Unlock()
		return nil, err
	}
	desc := models.ChunkDescriptor{Origin: s.randOriginLocked(), Shape: s.chunkShapeLocked(), Channel: channel, CoChannel: coChannel}
	s.mu.Unlock()

	return s.readAndFinish(desc)
}

func (s *Session) beginLoad() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrLoadInFlight
	}
	s.inFlight = true
	return nil
}

func (s *Session) endLoad() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// chunkShapeLocked clamps the configured chunk shape to the image extents.
func (s *Session) chunkShapeLocked() models.IVec3 {
	extent := s.vol.Shape()
	shape := s.opts.ChunkShape
	for i := 0; i < 3; i++ {
		if shape[i] > extent[i] {
			shape[i] = extent[i]
		}
	}
	return shape
}

// randOriginLocked draws an origin uniformly per axis such that a full-shape
// chunk fits inside the image. Repeat visits to a region are possible and
// fine: stored points are re-derived fresh on every load.
func (s *Session) randOriginLocked() models.IVec3 {
	extent := s.vol.Shape()
	shape := s.chunkShapeLocked()
	var origin models.IVec3
	for i := 0; i < 3; i++ {
		if limit := extent[i] - shape[i]; limit > 0 {
			origin[i] = s.opts.Rand.Intn(limit + 1)
		}
	}
	return origin
}

func (s *Session) hasCo(desc models.ChunkDescriptor) bool {
	return desc.CoChannel != desc.Channel && s.vol.Channels() > 1
}

// readAndFinish reads the descriptor's sub-volume(s) and completes the load.
func (s *Session) readAndFinish(desc models.ChunkDescriptor) (*ChunkView, error) {
	chunk, err := s.vol.ReadRegion(desc.Channel, desc.Origin, desc.Shape)
	if err != nil {
		return nil, err
	}
	var co *volume.Chunk
	if s.hasCo(desc) {
		if co, err = s.vol.ReadRegion(desc.CoChannel, desc.Origin, desc.Shape); err != nil {
			return nil, err
		}
	}
	return s.finishLoad(desc, chunk, co)
}

// finishLoad re-reads the store, filters points into the chunk, installs the
// new state, and presents the view. Any error leaves the prior state valid.
func (s *Session) finishLoad(desc models.ChunkDescriptor, chunk, co *volume.Chunk) (*ChunkView, error) {
	records, err := s.st.ReadAll()
	if err != nil {
		return nil, err
	}
	desc.Shape = chunk.Shape // clipped extent actually covered
	view := &ChunkView{
		Desc:        desc,
		Chunk:       chunk,
		CoChunk:     co,
		StorePoints: store.FilterInRegion(records, chunk.Origin, chunk.Shape),
		Contrast:    volume.EstimateContrast(chunk, s.opts.ContrastQuantiles[0], s.opts.ContrastQuantiles[1]),
	}

	s.mu.Lock()
	s.desc = desc
	s.working = nil
	s.state = ChunkLoaded
	prefetch := s.opts.Prefetch
	bridge := s.opts.Bridge
	s.mu.Unlock()

	if prefetch {
		go s.prefetchNext()
	}
	if bridge != nil {
		bridge.Present(view)
	}
	return view, nil
}

// prefetchNext reads one more random chunk in the background so the next
// navigation starts from warm data. Best effort: errors just drop the
// prefetch, and a settings change invalidates it at consume time.
func (s *Session) prefetchNext() {
	s.mu.Lock()
	requested := s.opts.ChunkShape
	desc := models.ChunkDescriptor{
		Origin:    s.randOriginLocked(),
		Shape:     s.chunkShapeLocked(),
		Channel:   s.opts.Channel,
		CoChannel: s.opts.CoChannel,
	}
	s.mu.Unlock()

	chunk, err := s.vol.ReadRegion(desc.Channel, desc.Origin, desc.Shape)
	if err != nil {
		return
	}
	var co *volume.Chunk
	if s.hasCo(desc) {
		if co, err = s.vol.ReadRegion(desc.CoChannel, desc.Origin, desc.Shape); err != nil {
			return
		}
	}

	s.mu.Lock()
	s.next = &prefetched{requested: requested, desc: desc, chunk: chunk, co: co}
	s.mu.Unlock()
}
