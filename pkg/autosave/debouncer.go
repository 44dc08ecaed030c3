// Package autosave batches rapid round edits into one delayed save.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/store"
)

const DefaultDelay = 750 * time.Millisecond

var ErrStopped = errors.New("autosave stopped")

// Saver is the round store as seen by the debouncer.
type Saver interface {
	Save(ctx context.Context, r models.Round, opts store.SaveOptions) (bool, error)
}

// Loader reads the stored copy of a round.
type Loader interface {
	GetByID(ctx context.Context, id string) (models.Round, bool, error)
}

type pendingSave struct {
	round models.Round
	seq   uint64
	timer *time.Timer
}

// Debouncer delays round saves so a burst of score edits results in a single
// write. Saves never restore a round that was deleted in the meantime.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	saver   Saver
	pending map[string]*pendingSave
	saving  map[string]*pendingSave // save started, not finished
	written map[string]uint64       // newest saved seq per round
	seq     uint64
	stopped bool

	saveMu sync.Mutex // an older copy never lands after a newer one
}

func New(saver Saver, delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{
		delay:   delay,
		saver:   saver,
		pending: make(map[string]*pendingSave),
		saving:  make(map[string]*pendingSave),
		written: make(map[string]uint64),
	}
}

// Schedule replaces any pending save of the round and restarts its timer.
// The debouncer keeps its own copy of r.
func (d *Debouncer) Schedule(r models.Round) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.scheduleLocked(r.Clone())
}

func (d *Debouncer) scheduleLocked(r models.Round) {
	if prev, ok := d.pending[r.ID]; ok {
		prev.timer.Stop()
	}
	d.seq++
	p := &pendingSave{round: r, seq: d.seq}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(r.ID, p) })
	d.pending[r.ID] = p
}

// latestLocked returns the newest unsaved state of a round.
func (d *Debouncer) latestLocked(roundID string) (*pendingSave, bool) {
	if p, ok := d.pending[roundID]; ok {
		return p, true
	}
	p, ok := d.saving[roundID]
	return p, ok
}

// Pending returns a copy of the round waiting to be saved, if any.
func (d *Debouncer) Pending(roundID string) (models.Round, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.latestLocked(roundID)
	if !ok {
		return models.Round{}, false
	}
	return p.round.Clone(), true
}

// Update applies edit to the newest state of a round, the pending copy or
// else the stored one, and schedules the result. Concurrent updates are
// applied one after another so no edit is lost.
func (d *Debouncer) Update(ctx context.Context, loader Loader, roundID string, edit func(r *models.Round) error) (models.Round, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return models.Round{}, ErrStopped
	}
	var r models.Round
	if p, ok := d.latestLocked(roundID); ok {
		r = p.round.Clone()
	} else {
		stored, found, err := loader.GetByID(ctx, roundID)
		if err != nil {
			return models.Round{}, err
		}
		if !found {
			return models.Round{}, fmt.Errorf("%w: round %s", store.ErrNotFound, roundID)
		}
		r = stored
	}
	if err := edit(&r); err != nil {
		return models.Round{}, err
	}
	d.scheduleLocked(r)
	return r.Clone(), nil
}

// Cancel drops a pending save. A save already in progress still runs but
// cannot restore a deleted round.
func (d *Debouncer) Cancel(roundID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[roundID]; ok {
		p.timer.Stop()
		delete(d.pending, roundID)
	}
	delete(d.saving, roundID)
}

func (d *Debouncer) fire(roundID string, p *pendingSave) {
	d.mu.Lock()
	if d.pending[roundID] != p {
		d.mu.Unlock()
		return
	}
	delete(d.pending, roundID)
	d.saving[roundID] = p
	d.mu.Unlock()

	if err := d.save(context.Background(), p); err != nil {
		logger.WithRound(roundID).Errorf("Auto-save failed: %v", err)
	}
}

func (d *Debouncer) save(ctx context.Context, p *pendingSave) error {
	d.saveMu.Lock()
	defer d.saveMu.Unlock()

	id := p.round.ID
	d.mu.Lock()
	stale := p.seq <= d.written[id]
	d.mu.Unlock()

	var err error
	if !stale {
		var saved bool
		saved, err = d.saver.Save(ctx, p.round, store.SaveOptions{})
		if err == nil && !saved {
			logger.WithRound(id).Debug("Auto-save skipped, round no longer exists")
		}
	}

	d.mu.Lock()
	if err == nil && p.seq > d.written[id] {
		d.written[id] = p.seq
	}
	if d.saving[id] == p {
		delete(d.saving, id)
	}
	d.mu.Unlock()
	return err
}

func (d *Debouncer) drain() []*pendingSave {
	d.mu.Lock()
	defer d.mu.Unlock()

	drained := make([]*pendingSave, 0, len(d.pending))
	for id, p := range d.pending {
		p.timer.Stop()
		drained = append(drained, p)
		delete(d.pending, id)
		d.saving[id] = p
	}
	return drained
}

// Flush saves every pending round now.
func (d *Debouncer) Flush(ctx context.Context) error {
	var errs []error
	for _, p := range d.drain() {
		if err := d.save(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop flushes pending saves and ignores later schedules.
func (d *Debouncer) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	return d.Flush(ctx)
}
