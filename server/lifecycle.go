package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/vctt94/pongtourney/ponggame"
	"github.com/vctt94/pongtourney/server/serverdb"
)

// readyState tracks the per-match readiness handshake. Created when the
// match is started by the coordinator, cleared when the match completes;
// its presence doubles as the "this match is still open" guard.
type readyState struct {
	match        *serverdb.Match
	player1Ready bool
	player2Ready bool
	started      bool
}

// liveMatch is one running simulation: the engine plus the tick loop's
// cancel handle.
type liveMatch struct {
	match  *serverdb.Match
	engine *ponggame.CanvasEngine
	cancel context.CancelFunc
	done   chan struct{}
}

// MatchCoordinator drives matches from PENDING through the readiness
// handshake and the simulation to COMPLETED. It owns the ready states
// and every live engine; nothing else mutates them.
type MatchCoordinator struct {
	db  serverdb.ServerDB
	hub *Hub
	log slog.Logger

	tickInterval time.Duration
	maxScore     int

	mu    sync.Mutex
	ready map[int64]*readyState
	live  map[int64]*liveMatch

	// onFinished reports a completed match upstream, set once at wiring
	// time by the tournament coordinator.
	onFinished func(ctx context.Context, m *serverdb.Match)
}

func NewMatchCoordinator(db serverdb.ServerDB, hub *Hub, log slog.Logger, tickHz, maxScore int) *MatchCoordinator {
	if tickHz <= 0 {
		tickHz = ponggame.DefaultTickHz
	}
	if maxScore <= 0 {
		maxScore = ponggame.DefaultMaxScore
	}
	return &MatchCoordinator{
		db:           db,
		hub:          hub,
		log:          log,
		tickInterval: time.Duration(1000.0/float64(tickHz)) * time.Millisecond,
		maxScore:     maxScore,
		ready:        make(map[int64]*readyState),
		live:         make(map[int64]*liveMatch),
	}
}

// SetFinishHandler wires the completion callback. Construction time only.
func (c *MatchCoordinator) SetFinishHandler(fn func(ctx context.Context, m *serverdb.Match)) {
	c.onFinished = fn
}

// StartNextMatch selects the lowest-id PENDING match of the tournament,
// marks it IN_PROGRESS and opens the readiness handshake. A nil match
// with nil error means the schedule is exhausted.
func (c *MatchCoordinator) StartNextMatch(ctx context.Context, tournamentID int64) (*serverdb.Match, error) {
	m, err := c.db.NextPendingMatch(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("next pending match for tournament %d: %w", tournamentID, err)
	}
	if m == nil {
		return nil, nil
	}

	if err := c.db.UpdateMatchStatus(ctx, m.ID, serverdb.MatchInProgress); err != nil {
		return nil, fmt.Errorf("mark match %d in progress: %w", m.ID, err)
	}
	m.Status = serverdb.MatchInProgress

	c.mu.Lock()
	c.ready[m.ID] = &readyState{match: m}
	c.mu.Unlock()

	c.hub.Broadcast(tournamentID, "match:start", matchStartEvent{
		MatchID:   m.ID,
		Player1ID: m.Player1ID,
		Player2ID: m.Player2ID,
	}, nil)
	c.log.Infof("match %d starting: %d vs %d (tournament %d)", m.ID, m.Player1ID, m.Player2ID, tournamentID)

	return m, nil
}

// SetPlayerReady flips the caller's ready flag, idempotently. The
// simulation starts exactly once, on the call that completes the pair;
// repeats after that are accepted and change nothing.
func (c *MatchCoordinator) SetPlayerReady(matchID, playerID int64) error {
	c.mu.Lock()
	rs, ok := c.ready[matchID]
	if !ok {
		c.mu.Unlock()
		return coded(CodeNotFound, "match %d is not awaiting players", matchID)
	}

	switch playerID {
	case rs.match.Player1ID:
		rs.player1Ready = true
	case rs.match.Player2ID:
		rs.player2Ready = true
	default:
		c.mu.Unlock()
		return coded(CodeForbidden, "user %d is not a player of match %d", playerID, matchID)
	}

	start := rs.player1Ready && rs.player2Ready && !rs.started
	if start {
		rs.started = true
	}
	ev := matchReadyEvent{Player1Ready: rs.player1Ready, Player2Ready: rs.player2Ready}
	m := rs.match
	c.mu.Unlock()

	c.hub.Broadcast(m.TournamentID, "match:ready", ev, nil)
	if start {
		c.startSimulation(m)
	}
	return nil
}

func (c *MatchCoordinator) startSimulation(m *serverdb.Match) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := ponggame.NewEngine(ponggame.DefaultCanvasWidth, ponggame.DefaultCanvasHeight, c.log).
		SetMaxScore(c.maxScore)

	lm := &liveMatch{
		match:  m,
		engine: eng,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// The match may have been completed (disconnect forfeit) between the
	// ready transition and this point. Registering the live entry only
	// while the match is still open keeps a finished match from ever
	// growing a tick loop.
	c.mu.Lock()
	if _, open := c.ready[m.ID]; !open {
		c.mu.Unlock()
		cancel()
		c.log.Debugf("match %d completed before simulation start", m.ID)
		return
	}
	c.live[m.ID] = lm
	c.mu.Unlock()

	c.log.Infof("match %d simulation running", m.ID)
	go c.run(ctx, lm)
}

// run is the per-match tick loop. Ticks are strictly sequential: the
// next one is only taken from the ticker after the previous state
// mutation and broadcast finished.
func (c *MatchCoordinator) run(ctx context.Context, lm *liveMatch) {
	defer close(lm.done)

	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			winner, aborted := c.step(lm)
			if aborted {
				// Persist whatever score exists; no winner.
				c.finishLive(lm, nil)
				return
			}
			switch winner {
			case 1:
				w := lm.match.Player1ID
				c.finishLive(lm, &w)
				return
			case 2:
				w := lm.match.Player2ID
				c.finishLive(lm, &w)
				return
			}
		}
	}
}

// step advances the engine one tick and broadcasts the resulting
// snapshot. A panic inside the tick is contained here so no match can
// take the process down.
func (c *MatchCoordinator) step(lm *liveMatch) (winner int32, aborted bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("match %d tick panic: %v", lm.match.ID, r)
			aborted = true
		}
	}()

	lm.engine.Tick()

	state := lm.engine.Snapshot()
	state.Players = ponggame.Players{
		Player1ID:    lm.match.Player1ID,
		Player2ID:    lm.match.Player2ID,
		Player1Ready: true,
		Player2Ready: true,
	}
	c.hub.Broadcast(lm.match.TournamentID, "match:update", matchUpdateEvent{State: state}, nil)

	return lm.engine.Winner(), false
}

// finishLive cancels the tick loop and records the terminal state in the
// same turn, so a stale tick can never re-broadcast a finished match.
func (c *MatchCoordinator) finishLive(lm *liveMatch, winnerID *int64) {
	lm.cancel()
	s1, s2 := lm.engine.CurrentScores()
	c.complete(lm.match, winnerID, s1, s2)
}

// complete persists the result and reports upstream. The ready-map entry
// is the completion guard: whoever removes it does the completion, every
// later caller is a no-op. That keeps the win path and a concurrent
// disconnect forfeit from double-finishing.
func (c *MatchCoordinator) complete(m *serverdb.Match, winnerID *int64, score1, score2 int) {
	c.mu.Lock()
	if _, open := c.ready[m.ID]; !open {
		c.mu.Unlock()
		return
	}
	delete(c.ready, m.ID)
	delete(c.live, m.ID)
	c.mu.Unlock()

	ctx := context.Background()
	if err := c.db.FinishMatch(ctx, m.ID, winnerID, score1, score2); err != nil {
		c.log.Errorf("persist result of match %d: %v", m.ID, err)
	}

	done := *m
	done.Status = serverdb.MatchCompleted
	done.Player1Score = score1
	done.Player2Score = score2
	done.WinnerID = winnerID

	c.hub.Broadcast(m.TournamentID, "match:end", matchEndEvent{WinnerID: winnerID}, nil)
	if winnerID != nil {
		c.log.Infof("match %d completed %d-%d, winner %d", m.ID, score1, score2, *winnerID)
	} else {
		c.log.Infof("match %d aborted at %d-%d", m.ID, score1, score2)
	}

	if c.onFinished != nil {
		c.onFinished(ctx, &done)
	}
}

// HandleInput applies a player's paddle move. Input for a match that is
// not live is a normal race between client assumptions and server state
// and is dropped silently, as is input from a non-player.
func (c *MatchCoordinator) HandleInput(matchID, userID int64, y float64) {
	c.mu.Lock()
	lm := c.live[matchID]
	c.mu.Unlock()
	if lm == nil {
		return
	}

	switch userID {
	case lm.match.Player1ID:
		lm.engine.SetPaddle(1, y)
	case lm.match.Player2ID:
		lm.engine.SetPaddle(2, y)
	}
}

// StateSnapshot returns the current state of a live match.
func (c *MatchCoordinator) StateSnapshot(matchID int64) (ponggame.State, bool) {
	c.mu.Lock()
	lm := c.live[matchID]
	c.mu.Unlock()
	if lm == nil {
		return ponggame.State{}, false
	}

	state := lm.engine.Snapshot()
	state.Players = ponggame.Players{
		Player1ID:    lm.match.Player1ID,
		Player2ID:    lm.match.Player2ID,
		Player1Ready: true,
		Player2Ready: true,
	}
	return state, true
}

// HandleDisconnect forfeits every open match the user is a player of.
// Immediate forfeit, no grace period: the remaining player takes the win
// with the live scores as final.
func (c *MatchCoordinator) HandleDisconnect(userID int64) {
	c.mu.Lock()
	var open []*serverdb.Match
	for _, rs := range c.ready {
		if rs.match.Player1ID == userID || rs.match.Player2ID == userID {
			open = append(open, rs.match)
		}
	}
	lms := make(map[int64]*liveMatch, len(open))
	for _, m := range open {
		if lm := c.live[m.ID]; lm != nil {
			lms[m.ID] = lm
		}
	}
	c.mu.Unlock()

	for _, m := range open {
		other := m.Player1ID
		if m.Player1ID == userID {
			other = m.Player2ID
		}
		c.log.Infof("user %d disconnected, match %d forfeited to %d", userID, m.ID, other)

		if lm := lms[m.ID]; lm != nil {
			c.finishLive(lm, &other)
		} else {
			// Still awaiting ready; no simulation to tear down.
			c.complete(m, &other, 0, 0)
		}
	}
}

// StopAll cancels every live tick loop, for shutdown. Matches are left
// IN_PROGRESS; a restart resumes them from the schedule.
func (c *MatchCoordinator) StopAll() {
	c.mu.Lock()
	lms := make([]*liveMatch, 0, len(c.live))
	for _, lm := range c.live {
		lms = append(lms, lm)
	}
	c.mu.Unlock()

	for _, lm := range lms {
		lm.cancel()
		<-lm.done
	}
}
