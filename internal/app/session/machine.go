package session

import "fmt"

type Phase int

const (
	PhaseLoading Phase = iota
	PhaseSeatSelection
	PhaseGoalSelection
	PhaseStudying
	PhaseNotFound
	PhaseExited
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseSeatSelection:
		return "seat-selection"
	case PhaseGoalSelection:
		return "goal-selection"
	case PhaseStudying:
		return "studying"
	case PhaseNotFound:
		return "not-found"
	case PhaseExited:
		return "exited"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal phases accept no further events.
func (p Phase) Terminal() bool { return p == PhaseNotFound || p == PhaseExited }

// State is the controller's whole in-memory state. It is a value; Transition never mutates its input.
type State struct {
	Phase Phase
	// Seated is true while the user has an active Participant row.
	Seated  bool
	OwnSeat int
	// PendingSeat is the seat picked while a goal prompt or seat write is outstanding.
	PendingSeat int
	// Claiming is true while a seat write is in flight.
	Claiming bool
}

// Event is one input to the machine.
type Event interface{ event() }

type (
	// RoomLoaded follows a successful room fetch. Own is the user's active seat, 0 if none.
	RoomLoaded    struct{ OwnSeat int }
	RoomMissing   struct{}
	SeatPicked    struct{ Seat int }
	GoalConfirmed struct{ Minutes int }
	GoalCancelled struct{}
	SeatClaimed   struct{ Seat int }
	ClaimFailed   struct{ Err error }
	// RosterLoaded follows a roster refresh. OwnSeat is the user's active seat, 0 if none.
	RosterLoaded    struct{ OwnSeat int }
	TransportJoined struct{}
	BackRequested   struct{}
	LeaveRequested  struct{}
	// Unmounted is navigation away or component teardown. The row stays active for a rejoin.
	Unmounted struct{}
)

func (RoomLoaded) event()      {}
func (RoomMissing) event()     {}
func (SeatPicked) event()      {}
func (GoalConfirmed) event()   {}
func (GoalCancelled) event()   {}
func (SeatClaimed) event()     {}
func (ClaimFailed) event()     {}
func (RosterLoaded) event()    {}
func (TransportJoined) event() {}
func (BackRequested) event()   {}
func (LeaveRequested) event()  {}
func (Unmounted) event()       {}

// Effect is a side effect the driver performs after a transition.
type Effect interface{ effect() }

type (
	CreateParticipant struct{ Seat, GoalMinutes int }
	MoveSeat          struct{ Seat int }
	RefreshRoster     struct{}
	// EnterStudying opens the chat subscription and starts the study clock.
	EnterStudying struct{}
	// JoinTransport must run after the phase is studying.
	JoinTransport struct{}
	// RestoreMedia replays persisted camera/mic state; it must follow JoinTransport.
	RestoreMedia struct{}
	// ExitStudying releases everything EnterStudying and JoinTransport acquired.
	ExitStudying struct{}
	// ReleaseSeat marks the row left and decrements the room count.
	ReleaseSeat struct{}
)

func (CreateParticipant) effect() {}
func (MoveSeat) effect()          {}
func (RefreshRoster) effect()     {}
func (EnterStudying) effect()     {}
func (JoinTransport) effect()     {}
func (RestoreMedia) effect()      {}
func (ExitStudying) effect()      {}
func (ReleaseSeat) effect()       {}

// Transition is the pure phase machine. Events that do not apply in the
// current phase leave the state unchanged and produce no effects.
func Transition(s State, ev Event) (State, []Effect) {
	if s.Phase.Terminal() {
		return s, nil
	}
	switch e := ev.(type) {
	case RoomLoaded:
		if s.Phase != PhaseLoading {
			return s, nil
		}
		s.Phase = PhaseSeatSelection
		s.Seated = e.OwnSeat > 0
		s.OwnSeat = e.OwnSeat
		return s, nil

	case RoomMissing:
		if s.Phase != PhaseLoading {
			return s, nil
		}
		s.Phase = PhaseNotFound
		return s, nil

	case SeatPicked:
		if s.Phase != PhaseSeatSelection || s.Claiming {
			return s, nil
		}
		switch {
		case !s.Seated:
			s.Phase = PhaseGoalSelection
			s.PendingSeat = e.Seat
			return s, nil
		case e.Seat == s.OwnSeat:
			return enterStudying(s, e.Seat)
		default:
			s.PendingSeat = e.Seat
			s.Claiming = true
			return s, []Effect{MoveSeat{Seat: e.Seat}}
		}

	case GoalConfirmed:
		if s.Phase != PhaseGoalSelection || s.Claiming {
			return s, nil
		}
		s.Claiming = true
		return s, []Effect{CreateParticipant{Seat: s.PendingSeat, GoalMinutes: e.Minutes}}

	case GoalCancelled:
		if s.Phase != PhaseGoalSelection || s.Claiming {
			return s, nil
		}
		s.Phase = PhaseSeatSelection
		s.PendingSeat = 0
		return s, nil

	case SeatClaimed:
		if !s.Claiming {
			return s, nil
		}
		return enterStudying(s, e.Seat)

	case ClaimFailed:
		if !s.Claiming {
			return s, nil
		}
		s.Claiming = false
		s.PendingSeat = 0
		s.Phase = PhaseSeatSelection
		return s, []Effect{RefreshRoster{}}

	case RosterLoaded:
		if s.Phase != PhaseSeatSelection || s.Claiming {
			return s, nil
		}
		s.Seated = e.OwnSeat > 0
		s.OwnSeat = e.OwnSeat
		return s, nil

	case TransportJoined:
		if s.Phase != PhaseStudying {
			return s, nil
		}
		return s, []Effect{RestoreMedia{}}

	case BackRequested:
		if s.Phase != PhaseStudying {
			return s, nil
		}
		s.Phase = PhaseSeatSelection
		return s, []Effect{ExitStudying{}, RefreshRoster{}}

	case LeaveRequested:
		fx := []Effect{}
		if s.Phase == PhaseStudying {
			fx = append(fx, ExitStudying{})
		}
		if s.Seated {
			fx = append(fx, ReleaseSeat{})
		}
		return State{Phase: PhaseExited}, fx

	case Unmounted:
		var fx []Effect
		if s.Phase == PhaseStudying {
			fx = []Effect{ExitStudying{}}
		}
		return State{Phase: PhaseExited}, fx
	}
	return s, nil
}

func enterStudying(s State, seat int) (State, []Effect) {
	s.Phase = PhaseStudying
	s.Seated = true
	s.OwnSeat = seat
	s.PendingSeat = 0
	s.Claiming = false
	return s, []Effect{EnterStudying{}, JoinTransport{}}
}
