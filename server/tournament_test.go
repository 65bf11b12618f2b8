package server

import (
	"context"
	"testing"
	"time"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vctt94/pongtourney/server/serverdb"
)

type tournamentFixture struct {
	db  *serverdb.MemDB
	hub *Hub
	mc  *MatchCoordinator
	tc  *TournamentCoordinator
}

func newTournamentFixture(t *testing.T, maxScore int) *tournamentFixture {
	t.Helper()

	db := serverdb.NewMemDB()
	hub := NewHub(slog.Disabled)
	mc := NewMatchCoordinator(db, hub, slog.Disabled, 100, maxScore)
	tc := NewTournamentCoordinator(db, hub, mc, slog.Disabled)
	t.Cleanup(mc.StopAll)
	return &tournamentFixture{db: db, hub: hub, mc: mc, tc: tc}
}

func (f *tournamentFixture) connect(t *testing.T, userID int64, username string) *Conn {
	t.Helper()
	c := testConn()
	require.NoError(t, f.hub.Register(c, userID, username))
	return c
}

func requireCode(t *testing.T, err error, code Code) {
	t.Helper()
	var ce *CodedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, code, ce.Code)
}

func TestTournament_Create(t *testing.T) {
	f := newTournamentFixture(t, 5)
	ctx := context.Background()
	a := f.connect(t, 1, "alice")

	tourney, parts, err := f.tc.CreateTournament(ctx, a, "cup", 4)
	require.NoError(t, err)
	assert.Equal(t, serverdb.TournamentPending, tourney.Status)
	assert.Equal(t, int64(1), tourney.CreatorID)
	assert.Equal(t, 4, tourney.MaxParticipants)

	require.Len(t, parts, 1, "creator auto-joins")
	assert.Equal(t, "alice", parts[0].Username)
	assert.True(t, f.hub.IsInRoom(a, tourney.ID))

	// Same creator, same name, still active.
	_, _, err = f.tc.CreateTournament(ctx, a, "cup", 4)
	requireCode(t, err, CodeAlreadyExists)

	// Different name is fine.
	_, _, err = f.tc.CreateTournament(ctx, a, "cup 2", 0)
	require.NoError(t, err)

	// Another creator may reuse the name.
	b := f.connect(t, 2, "bob")
	_, _, err = f.tc.CreateTournament(ctx, b, "cup", 0)
	require.NoError(t, err)

	_, _, err = f.tc.CreateTournament(ctx, a, "", 0)
	requireCode(t, err, CodeInvalidState)

	_, _, err = f.tc.CreateTournament(ctx, testConn(), "ghost", 0)
	requireCode(t, err, CodeForbidden)
}

func TestTournament_JoinValidation(t *testing.T) {
	f := newTournamentFixture(t, 5)
	ctx := context.Background()
	a := f.connect(t, 1, "alice")
	b := f.connect(t, 2, "bob")
	c := f.connect(t, 3, "carol")

	tourney, _, err := f.tc.CreateTournament(ctx, a, "cup", 2)
	require.NoError(t, err)

	_, _, err = f.tc.JoinTournament(ctx, b, tourney.ID+100, "bob")
	requireCode(t, err, CodeNotFound)

	_, _, err = f.tc.JoinTournament(ctx, b, tourney.ID, "alice")
	requireCode(t, err, CodeDuplicateUsername)

	drain(t, a)
	_, parts, err := f.tc.JoinTournament(ctx, b, tourney.ID, "bob")
	require.NoError(t, err)
	require.Len(t, parts, 2)

	// The join broadcast reaches the room, joiner included.
	var join joinEvent
	lastEvent(t, a, "tournament:join", &join)
	assert.Equal(t, int64(2), join.UserID)
	assert.Len(t, join.Participants, 2)
	lastEvent(t, b, "tournament:join", &join)
	assert.Equal(t, int64(2), join.UserID)

	// Re-joining reports the duplicate before the capacity problem.
	_, _, err = f.tc.JoinTournament(ctx, b, tourney.ID, "bob2")
	requireCode(t, err, CodeAlreadyJoined)

	_, _, err = f.tc.JoinTournament(ctx, c, tourney.ID, "carol")
	requireCode(t, err, CodeFull)

	// No registration after start.
	require.NoError(t, f.tc.StartTournament(ctx, a, tourney.ID))
	_, _, err = f.tc.JoinTournament(ctx, c, tourney.ID, "carol")
	requireCode(t, err, CodeInvalidState)
}

func TestTournament_StartValidation(t *testing.T) {
	f := newTournamentFixture(t, 5)
	ctx := context.Background()
	a := f.connect(t, 1, "alice")
	b := f.connect(t, 2, "bob")
	c := f.connect(t, 3, "carol")

	tourney, _, err := f.tc.CreateTournament(ctx, a, "cup", 0)
	require.NoError(t, err)

	err = f.tc.StartTournament(ctx, a, tourney.ID+100)
	requireCode(t, err, CodeNotFound)

	err = f.tc.StartTournament(ctx, b, tourney.ID)
	requireCode(t, err, CodeForbidden)

	// Creator alone is not enough.
	err = f.tc.StartTournament(ctx, a, tourney.ID)
	requireCode(t, err, CodeInsufficientParticipants)

	_, _, err = f.tc.JoinTournament(ctx, b, tourney.ID, "bob")
	require.NoError(t, err)
	_, _, err = f.tc.JoinTournament(ctx, c, tourney.ID, "carol")
	require.NoError(t, err)
	drain(t, a)

	require.NoError(t, f.tc.StartTournament(ctx, a, tourney.ID))

	got, err := f.db.TournamentByID(ctx, tourney.ID)
	require.NoError(t, err)
	assert.Equal(t, serverdb.TournamentInProgress, got.Status)

	// Full round robin in registration order: 1-2, 1-3, 2-3.
	matches, err := f.db.MatchesByTournament(ctx, tourney.ID)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, [2]int64{1, 2}, [2]int64{matches[0].Player1ID, matches[0].Player2ID})
	assert.Equal(t, [2]int64{1, 3}, [2]int64{matches[1].Player1ID, matches[1].Player2ID})
	assert.Equal(t, [2]int64{2, 3}, [2]int64{matches[2].Player1ID, matches[2].Player2ID})

	// The first match is already opened for readiness.
	assert.Equal(t, serverdb.MatchInProgress, matches[0].Status)
	names := eventNames(drain(t, a))
	assert.Contains(t, names, "tournament:start")
	assert.Contains(t, names, "match:start")

	err = f.tc.StartTournament(ctx, a, tourney.ID)
	requireCode(t, err, CodeInvalidState)
}

// TestTournament_FullRun walks a two-player tournament from creation to
// completion. The single match is decided by parking the ball in front
// of a wall so the simulation scores on its next tick.
func TestTournament_FullRun(t *testing.T) {
	f := newTournamentFixture(t, 1)
	ctx := context.Background()
	a := f.connect(t, 1, "alice")
	b := f.connect(t, 2, "bob")

	tourney, _, err := f.tc.CreateTournament(ctx, a, "cup", 0)
	require.NoError(t, err)
	_, _, err = f.tc.JoinTournament(ctx, b, tourney.ID, "bob")
	require.NoError(t, err)
	require.NoError(t, f.tc.StartTournament(ctx, a, tourney.ID))

	matches, err := f.db.MatchesByTournament(ctx, tourney.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	mid := matches[0].ID

	require.NoError(t, f.mc.SetPlayerReady(mid, 1))
	require.NoError(t, f.mc.SetPlayerReady(mid, 2))

	lm := f.mc.liveEngine(mid)
	require.NotNil(t, lm)
	// Heading out past the right wall, above paddle reach: point and
	// match to player 1.
	lm.engine.SetBall(799, 100, 6, 0)

	require.Eventually(t, func() bool {
		tr, err := f.db.TournamentByID(ctx, tourney.ID)
		return err == nil && tr.Status == serverdb.TournamentCompleted
	}, 2*time.Second, 5*time.Millisecond)

	tr, err := f.db.TournamentByID(ctx, tourney.ID)
	require.NoError(t, err)
	require.NotNil(t, tr.WinnerID)
	assert.Equal(t, int64(1), *tr.WinnerID)

	m, err := f.db.MatchByID(ctx, mid)
	require.NoError(t, err)
	assert.Equal(t, serverdb.MatchCompleted, m.Status)
	require.NotNil(t, m.WinnerID)
	assert.Equal(t, int64(1), *m.WinnerID)

	names := eventNames(drain(t, b))
	assert.Contains(t, names, "match:end")
	assert.Contains(t, names, "tournament:finish")
}

func TestTournament_LeaveAnnounces(t *testing.T) {
	f := newTournamentFixture(t, 5)
	ctx := context.Background()
	a := f.connect(t, 1, "alice")
	b := f.connect(t, 2, "bob")

	tourney, _, err := f.tc.CreateTournament(ctx, a, "cup", 0)
	require.NoError(t, err)
	_, _, err = f.tc.JoinTournament(ctx, b, tourney.ID, "bob")
	require.NoError(t, err)
	drain(t, a)
	drain(t, b)

	require.NoError(t, f.tc.LeaveTournament(b, tourney.ID))
	assert.False(t, f.hub.IsInRoom(b, tourney.ID))

	var leave leaveEvent
	lastEvent(t, a, "tournament:leave", &leave)
	assert.Equal(t, leaveEvent{UserID: 2, TournamentID: tourney.ID}, leave)
	assert.Empty(t, drain(t, b), "the leaver gets no echo")

	err = f.tc.LeaveTournament(b, tourney.ID)
	requireCode(t, err, CodeNotFound)
}

func TestStandingsWinner(t *testing.T) {
	p := func(id int64, name string) *serverdb.Participant {
		return &serverdb.Participant{ID: id, UserID: id, Username: name}
	}
	win := func(p1, p2, winner int64) *serverdb.Match {
		return &serverdb.Match{Player1ID: p1, Player2ID: p2, WinnerID: &winner, Status: serverdb.MatchCompleted}
	}

	parts := []*serverdb.Participant{p(1, "alice"), p(2, "bob"), p(3, "carol")}

	t.Run("clear leader", func(t *testing.T) {
		w := standingsWinner(parts, []*serverdb.Match{
			win(1, 2, 2), win(1, 3, 3), win(2, 3, 2),
		})
		require.NotNil(t, w)
		assert.Equal(t, int64(2), w.UserID)
		assert.Equal(t, 2, w.Wins)
	})

	t.Run("two way tie falls to head to head", func(t *testing.T) {
		// Four players at 2-2-1-1; alice and carol share the top and
		// carol won their direct match.
		four := append(append([]*serverdb.Participant{}, parts...), p(4, "dave"))
		w := standingsWinner(four, []*serverdb.Match{
			win(1, 2, 1), win(1, 4, 1),
			win(3, 1, 3), win(3, 2, 3),
			win(2, 4, 2), win(4, 3, 4),
		})
		require.NotNil(t, w)
		assert.Equal(t, int64(3), w.UserID)
		assert.Equal(t, 2, w.Wins)
	})

	t.Run("three way tie goes to earliest registration", func(t *testing.T) {
		w := standingsWinner(parts, []*serverdb.Match{
			win(1, 2, 1), win(2, 3, 2), win(1, 3, 3),
		})
		require.NotNil(t, w)
		assert.Equal(t, int64(1), w.UserID)
	})

	t.Run("tie without head to head result goes to earliest", func(t *testing.T) {
		aborted := &serverdb.Match{Player1ID: 2, Player2ID: 3, Status: serverdb.MatchCompleted}
		w := standingsWinner([]*serverdb.Participant{p(2, "bob"), p(3, "carol")},
			[]*serverdb.Match{aborted})
		require.NotNil(t, w)
		assert.Equal(t, int64(2), w.UserID)
		assert.Equal(t, 0, w.Wins)
	})

	t.Run("no participants", func(t *testing.T) {
		assert.Nil(t, standingsWinner(nil, nil))
	})
}
