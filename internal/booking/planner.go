package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"roombook/internal/availability"
	"roombook/internal/model"
)

// ErrSuperseded is returned for an availability query whose response arrived
// after a newer query was issued. Its result has been discarded.
var ErrSuperseded = errors.New("availability query superseded")

// Authority is the remote collaborator that owns reservations.
type Authority interface {
	Reservations(ctx context.Context, date time.Time, roomIDs []int64) ([]model.Reservation, error)
	CreateReservation(ctx context.Context, req Request) (*model.Reservation, error)
	UpdateReservation(ctx context.Context, id int64, req Request) (*model.Reservation, error)
}

// Query selects the day and rooms to compute availability for. ExcludeID
// hides a reservation being edited so it does not block itself.
type Query struct {
	Date      time.Time
	RoomIDs   []int64
	ExcludeID int64
}

func (q Query) key() string {
	ids := make([]string, len(q.RoomIDs))
	for i, id := range q.RoomIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s|%s|%d", q.Date.Format(DateLayout), strings.Join(ids, ","), q.ExcludeID)
}

// Planner drives the availability engine for one booking or edit flow.
// Only the most recent Refresh may publish its result.
type Planner struct {
	engine    *availability.Engine
	authority Authority
	logger    zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	query   Query
	current availability.Result
}

// NewPlanner builds a planner on top of engine and authority.
func NewPlanner(engine *availability.Engine, authority Authority, logger zerolog.Logger) *Planner {
	return &Planner{
		engine:    engine,
		authority: authority,
		logger:    logger.With().Str("component", "planner").Logger(),
	}
}

// Refresh fetches reservations for q and recomputes availability. An
// in-flight refresh is cancelled; if its response still arrives it is
// dropped with ErrSuperseded. On transport failure availability is reset to
// empty and the error is returned.
func (p *Planner) Refresh(ctx context.Context, q Query) (availability.Result, error) {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	if p.cancel != nil {
		p.cancel()
	}
	qctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.query = q
	p.mu.Unlock()

	reservations, err := p.authority.Reservations(qctx, q.Date, q.RoomIDs)

	p.mu.Lock()
	defer p.mu.Unlock()
	cancel()

	if gen != p.gen {
		p.logger.Debug().Str("query", q.key()).Msg("discarding stale availability response")
		return availability.Result{}, ErrSuperseded
	}
	p.cancel = nil

	if err != nil {
		p.current = availability.Result{}
		return availability.Result{}, fmt.Errorf("fetch reservations: %w", err)
	}

	if q.ExcludeID != 0 {
		reservations = without(reservations, q.ExcludeID)
	}
	p.current = p.engine.Compute(q.Date, q.RoomIDs, reservations)
	return p.current, nil
}

// Current returns the last published availability.
func (p *Planner) Current() availability.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// EndOptions derives end hours for start from the last published result.
func (p *Planner) EndOptions(start *int) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return availability.EndOptions(start, p.query.RoomIDs, p.current.UnavailableSlots)
}

// Reset cancels any in-flight refresh and clears availability.
func (p *Planner) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.query = Query{}
	p.current = availability.Result{}
}

// Submit validates sel locally and creates the reservation. Invalid
// selections never reach the authority.
func (p *Planner) Submit(ctx context.Context, sel Selection, roomIDs []int64, floorID *int64) (*model.Reservation, error) {
	req, err := NewRequest(sel, roomIDs, floorID, p.engine.Location())
	if err != nil {
		return nil, err
	}
	res, err := p.authority.CreateReservation(ctx, req)
	if err != nil {
		return nil, err
	}
	p.logger.Info().Int64("booking_id", res.ID).Str("kind", string(req.Kind)).Msg("reservation submitted")
	return res, nil
}

// Edit validates sel locally and updates reservation id.
func (p *Planner) Edit(ctx context.Context, id int64, sel Selection, roomIDs []int64) (*model.Reservation, error) {
	req, err := NewRequest(sel, roomIDs, nil, p.engine.Location())
	if err != nil {
		return nil, err
	}
	res, err := p.authority.UpdateReservation(ctx, id, req)
	if err != nil {
		return nil, err
	}
	p.logger.Info().Int64("booking_id", id).Msg("reservation updated")
	return res, nil
}

func without(reservations []model.Reservation, id int64) []model.Reservation {
	out := make([]model.Reservation, 0, len(reservations))
	for i := range reservations {
		if reservations[i].ID != id {
			out = append(out, reservations[i])
		}
	}
	return out
}
