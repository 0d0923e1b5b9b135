package main

import (
	"testing"

	"github.com/dkeye/CoStudy/internal/domain"
)

func TestChooseSeat(t *testing.T) {
	room := &domain.Room{ID: "r", Capacity: 4}
	roster := domain.Roster{
		{ID: "a", RoomID: "r", UserID: "ua", SeatNumber: 1},
		{ID: "b", RoomID: "r", UserID: "ub", SeatNumber: 3},
	}
	full := append(domain.Roster{
		{ID: "c", RoomID: "r", UserID: "uc", SeatNumber: 2},
		{ID: "d", RoomID: "r", UserID: "ud", SeatNumber: 4},
	}, roster...)

	tests := []struct {
		name      string
		room      *domain.Room
		roster    domain.Roster
		own, pref int
		want      int
		ok        bool
	}{
		{"own seat wins", room, roster, 3, 2, 3, true},
		{"free preferred", room, roster, 0, 4, 4, true},
		{"taken preferred falls back", room, roster, 0, 1, 2, true},
		{"out of range preferred", room, roster, 0, 9, 2, true},
		{"full room", room, full, 0, 0, 0, false},
		{"no room", nil, nil, 0, 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := chooseSeat(tt.room, tt.roster, tt.own, tt.pref)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("chooseSeat = %d, %v; want %d, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}
