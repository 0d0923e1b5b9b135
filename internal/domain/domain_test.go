package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestCheckSeat(t *testing.T) {
	r := &Room{Capacity: 5}
	tests := []struct {
		seat int
		err  error
	}{
		{1, nil},
		{5, nil},
		{0, ErrSeatOutOfRange},
		{6, ErrSeatOutOfRange},
		{-3, ErrSeatOutOfRange},
	}
	for _, tt := range tests {
		if err := r.CheckSeat(tt.seat); !errors.Is(err, tt.err) {
			t.Errorf("CheckSeat(%d) = %v, want %v", tt.seat, err, tt.err)
		}
	}
}

func TestValidateGoal(t *testing.T) {
	for _, m := range []int{MinGoalMinutes, 60, MaxGoalMinutes} {
		if err := ValidateGoal(m); err != nil {
			t.Errorf("ValidateGoal(%d) = %v", m, err)
		}
	}
	for _, m := range []int{0, -10, MaxGoalMinutes + 1} {
		if err := ValidateGoal(m); !errors.Is(err, ErrInvalidGoal) {
			t.Errorf("ValidateGoal(%d) = %v", m, err)
		}
	}
}

func TestNormalizeMessage(t *testing.T) {
	if _, err := NormalizeMessage(" \t\n"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank: %v", err)
	}
	got, err := NormalizeMessage("  hello  ")
	if err != nil || got != "hello" {
		t.Fatalf("trim: %q, %v", got, err)
	}
	got, _ = NormalizeMessage(strings.Repeat("a", MaxMessageLen+10))
	if len(got) != MaxMessageLen {
		t.Fatalf("len = %d", len(got))
	}

	got, _ = NormalizeMessage("a" + strings.Repeat("é", 1200))
	if !utf8.ValidString(got) {
		t.Fatal("truncation split a multi-byte rune")
	}
	if len(got) > MaxMessageLen || len(got) < MaxMessageLen-utf8.UTFMax {
		t.Fatalf("len = %d", len(got))
	}
}

func TestRosterLookups(t *testing.T) {
	left := time.Now()
	r := Roster{
		{ID: "1", UserID: "ana", SeatNumber: 1, CameraEnabled: true},
		{ID: "2", UserID: "ben", SeatNumber: 2},
		{ID: "3", UserID: "cal", SeatNumber: 3, CameraEnabled: true, LeftAt: &left},
	}
	if p, ok := r.Occupant(2); !ok || p.UserID != "ben" {
		t.Fatalf("Occupant(2) = %+v, %v", p, ok)
	}
	if _, ok := r.Occupant(3); ok {
		t.Fatal("left participant still occupies seat 3")
	}
	if _, ok := r.ByUser("cal"); ok {
		t.Fatal("ByUser returned a left row")
	}
	if !r.AnyCameraExcept("ben") {
		t.Fatal("ana has camera on")
	}
	if r.AnyCameraExcept("ana") {
		t.Fatal("only a left row has camera on besides ana")
	}
}

func TestNewProfile(t *testing.T) {
	p, err := NewProfile("u1", "  Una ", "")
	if err != nil || p.DisplayName != "Una" {
		t.Fatalf("NewProfile = %+v, %v", p, err)
	}
	if _, err := NewProfile("", "Una", ""); !errors.Is(err, ErrUserIDInvalid) {
		t.Fatalf("empty id: %v", err)
	}
	if _, err := NewProfile("u1", " ", ""); !errors.Is(err, ErrDisplayNameEmpty) {
		t.Fatalf("empty name: %v", err)
	}
	if _, err := NewProfile("u1", strings.Repeat("x", MaxDisplayNameLen+1), ""); !errors.Is(err, ErrDisplayNameTooLong) {
		t.Fatalf("long name: %v", err)
	}
	if a := AnonymousProfile("u2"); a.UserID != "u2" || a.DisplayName == "" {
		t.Fatalf("anonymous = %+v", a)
	}
}
