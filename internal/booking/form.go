package booking

import (
	"sync"
	"time"

	"roombook/internal/model"
)

// State is a step of the booking form.
type State string

const (
	StateIdle      State = "idle"
	StateRooms     State = "rooms"
	StateDate      State = "date"
	StateEndDate   State = "end_date"
	StateStart     State = "start"
	StateEnd       State = "end"
	StateConfirm   State = "confirm"
	StateComplete  State = "complete"
	StateCancelled State = "cancelled"
)

var transitions = map[State][]State{
	StateIdle:      {StateRooms},
	StateRooms:     {StateDate, StateCancelled},
	StateDate:      {StateStart, StateEndDate, StateRooms, StateCancelled},
	StateEndDate:   {StateStart, StateEnd, StateDate, StateCancelled},
	StateStart:     {StateEnd, StateDate, StateEndDate, StateCancelled},
	StateEnd:       {StateConfirm, StateStart, StateDate, StateEndDate, StateCancelled},
	StateConfirm:   {StateComplete, StateEnd, StateStart, StateDate, StateEndDate, StateCancelled},
	StateComplete:  {StateIdle},
	StateCancelled: {StateIdle},
}

// CanTransition reports whether the form may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Form collects a selection step by step. Changing the date clears the
// chosen hours; choosing a start at or after the current end clears the end.
type Form struct {
	mu sync.Mutex

	kind    model.Kind
	state   State
	rooms   []int64
	floorID *int64
	date    time.Time
	endDate time.Time
	start   *int
	end     *int
}

// NewForm starts an empty form of the given kind.
func NewForm(kind model.Kind) *Form {
	return &Form{kind: kind, state: StateIdle}
}

// State returns the current step.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Kind returns the kind of booking being built.
func (f *Form) Kind() model.Kind {
	return f.kind
}

// Transition moves to the given state if allowed.
func (f *Form) Transition(to State) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transitionLocked(to)
}

func (f *Form) transitionLocked(to State) bool {
	if f.state == to {
		return true
	}
	if !CanTransition(f.state, to) {
		return false
	}
	f.state = to
	return true
}

// SetRooms records the requested rooms and optional floor.
func (f *Form) SetRooms(roomIDs []int64, floorID *int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateIdle {
		f.transitionLocked(StateRooms)
	}
	f.rooms = append([]int64(nil), roomIDs...)
	f.floorID = floorID
	f.transitionLocked(StateDate)
}

// Rooms returns the requested rooms.
func (f *Form) Rooms() ([]int64, *int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.rooms...), f.floorID
}

// SetDate chooses the (first) day and clears both hours. Camp forms reset
// the end date to the same day.
func (f *Form) SetDate(date time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.date = date
	f.start, f.end = nil, nil
	if f.kind == model.KindCamp {
		f.endDate = date
		f.transitionLocked(StateEndDate)
		return
	}
	f.transitionLocked(StateStart)
}

// SetEndDate chooses the last day of a camp. Hours are kept.
func (f *Form) SetEndDate(date time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endDate = date
	f.transitionLocked(StateStart)
}

// SetStart chooses the start hour.
func (f *Form) SetStart(h int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.start = Hour(h)
	if f.end != nil && *f.end <= h {
		f.end = nil
	}
	f.transitionLocked(StateEnd)
}

// SetEnd chooses the end hour.
func (f *Form) SetEnd(h int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.end = Hour(h)
	f.transitionLocked(StateConfirm)
}

// Start returns the chosen start hour, nil when unset.
func (f *Form) Start() *int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.start == nil {
		return nil
	}
	return Hour(*f.start)
}

// Selection returns the selection collected so far.
func (f *Form) Selection() Selection {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kind == model.KindCamp {
		return Camp{StartDate: f.date, EndDate: f.endDate, Start: f.start, End: f.end}
	}
	return Regular{Date: f.date, Start: f.start, End: f.end}
}

// Complete marks the form as submitted.
func (f *Form) Complete() bool {
	return f.Transition(StateComplete)
}

// Cancel abandons the form.
func (f *Form) Cancel() bool {
	return f.Transition(StateCancelled)
}
