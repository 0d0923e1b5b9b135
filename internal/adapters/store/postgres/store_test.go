package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/dkeye/CoStudy/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"seat index", &pgconn.PgError{Code: "23505", ConstraintName: "idx_active_seat"}, domain.ErrSeatTaken},
		{"user index", &pgconn.PgError{Code: "23505", ConstraintName: "idx_active_user"}, domain.ErrAlreadySeated},
		{"wrapped", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", ConstraintName: "idx_active_seat"}), domain.ErrSeatTaken},
		{"translated by gorm", gorm.ErrDuplicatedKey, domain.ErrSeatTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := translate(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("translate = %v, want %v", got, tt.want)
			}
		})
	}

	other := errors.New("connection reset")
	if got := translate(other); !errors.Is(got, other) || errors.Is(got, domain.ErrSeatTaken) {
		t.Fatalf("unrelated error mistranslated: %v", got)
	}
}

// openTestStore connects to COSTUDY_TEST_DSN; without it the integration tests skip.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("COSTUDY_TEST_DSN")
	if dsn == "" {
		t.Skip("COSTUDY_TEST_DSN not set")
	}
	st, err := Open(Options{DSN: dsn})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestConcurrentClaimsHoldOneSeat(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	room := domain.RoomID("it-" + uuid.NewString()[:8])
	if err := st.PutRoom(ctx, domain.Room{ID: room, Name: "it", Capacity: 4}); err != nil {
		t.Fatal(err)
	}

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := domain.Participant{
				RoomID:     room,
				UserID:     domain.UserID(fmt.Sprintf("user-%d", i)),
				SeatNumber: 2,
				Status:     domain.StatusStudying,
			}
			errs[i] = st.CreateParticipant(ctx, &p)
		}()
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case !errors.Is(err, domain.ErrSeatTaken):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("%d claims won seat 2", won)
	}
	roster, err := st.ActiveParticipants(ctx, room)
	if err != nil {
		t.Fatal(err)
	}
	if len(roster) != 1 {
		t.Fatalf("roster = %+v", roster)
	}
}

func TestLeaveFreesSeatAndIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	room := domain.RoomID("it-" + uuid.NewString()[:8])
	_ = st.PutRoom(ctx, domain.Room{ID: room, Name: "it", Capacity: 4})

	p := domain.Participant{RoomID: room, UserID: "a", SeatNumber: 1, Status: domain.StatusStudying}
	if err := st.CreateParticipant(ctx, &p); err != nil {
		t.Fatal(err)
	}
	changed, err := st.MarkLeft(ctx, p.ID, p.JoinedAt)
	if err != nil || !changed {
		t.Fatalf("first leave = %v, %v", changed, err)
	}
	changed, err = st.MarkLeft(ctx, p.ID, p.JoinedAt)
	if err != nil || changed {
		t.Fatalf("second leave = %v, %v", changed, err)
	}

	q := domain.Participant{RoomID: room, UserID: "b", SeatNumber: 1, Status: domain.StatusStudying}
	if err := st.CreateParticipant(ctx, &q); err != nil {
		t.Fatalf("seat not freed: %v", err)
	}
}

func TestRecentMessagesAscending(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	room := domain.RoomID("it-" + uuid.NewString()[:8])
	for i := range 5 {
		m := &domain.ChatMessage{RoomID: room, SenderID: "a", Text: fmt.Sprintf("m%d", i)}
		if err := st.InsertMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := st.RecentMessages(ctx, room, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 || msgs[0].Text != "m2" || msgs[2].Text != "m4" {
		t.Fatalf("messages = %+v", msgs)
	}
}
