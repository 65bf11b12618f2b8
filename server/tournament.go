package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/vctt94/pongtourney/server/serverdb"
)

// TournamentCoordinator owns tournament state transitions. Every
// transition runs under one mutex, so registration, start and
// finalization never interleave.
type TournamentCoordinator struct {
	db      serverdb.ServerDB
	hub     *Hub
	matches *MatchCoordinator
	log     slog.Logger

	mu sync.Mutex
}

func NewTournamentCoordinator(db serverdb.ServerDB, hub *Hub, matches *MatchCoordinator, log slog.Logger) *TournamentCoordinator {
	t := &TournamentCoordinator{
		db:      db,
		hub:     hub,
		matches: matches,
		log:     log,
	}
	matches.SetFinishHandler(t.handleMatchFinished)
	return t
}

// CreateTournament opens a new PENDING tournament and registers the
// creator as its first participant. A creator cannot hold two
// non-completed tournaments of the same name.
func (t *TournamentCoordinator) CreateTournament(ctx context.Context, c *Conn, name string, maxParticipants int) (*serverdb.Tournament, []*serverdb.Participant, error) {
	userID, username, ok := t.hub.User(c)
	if !ok {
		return nil, nil, coded(CodeForbidden, "connection is not registered")
	}
	if name == "" {
		return nil, nil, coded(CodeInvalidState, "tournament name is required")
	}
	if maxParticipants < 0 {
		return nil, nil, coded(CodeInvalidState, "max participants cannot be negative")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, err := t.db.ActiveTournamentByName(ctx, userID, name)
	if err != nil {
		return nil, nil, fmt.Errorf("look up tournament %q: %w", name, err)
	}
	if existing != nil {
		return nil, nil, coded(CodeAlreadyExists, "tournament %q already exists", name)
	}

	tourney := &serverdb.Tournament{
		Name:            name,
		CreatorID:       userID,
		MaxParticipants: maxParticipants,
		Status:          serverdb.TournamentPending,
		CreatedAt:       time.Now(),
	}
	if err := t.db.CreateTournament(ctx, tourney); err != nil {
		return nil, nil, fmt.Errorf("create tournament %q: %w", name, err)
	}

	// The creator joins their own tournament on creation.
	p := &serverdb.Participant{
		TournamentID: tourney.ID,
		UserID:       userID,
		Username:     username,
	}
	if err := t.db.AddParticipant(ctx, p); err != nil {
		return nil, nil, fmt.Errorf("register creator of tournament %d: %w", tourney.ID, err)
	}
	t.hub.JoinRoom(c, tourney.ID)

	t.log.Infof("tournament %d %q created by user %d", tourney.ID, name, userID)
	return tourney, []*serverdb.Participant{p}, nil
}

// JoinTournament registers the caller in a PENDING tournament under the
// given display name and broadcasts the updated roster to the room,
// joiner included.
func (t *TournamentCoordinator) JoinTournament(ctx context.Context, c *Conn, tournamentID int64, username string) (*serverdb.Tournament, []*serverdb.Participant, error) {
	userID, _, ok := t.hub.User(c)
	if !ok {
		return nil, nil, coded(CodeForbidden, "connection is not registered")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tourney, err := t.db.TournamentByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, serverdb.ErrTournamentNotFound) {
			return nil, nil, coded(CodeNotFound, "tournament %d not found", tournamentID)
		}
		return nil, nil, fmt.Errorf("look up tournament %d: %w", tournamentID, err)
	}
	if tourney.Status != serverdb.TournamentPending {
		return nil, nil, coded(CodeInvalidState, "tournament %d is not open for registration", tournamentID)
	}

	parts, err := t.db.ParticipantsByTournament(ctx, tournamentID)
	if err != nil {
		return nil, nil, fmt.Errorf("list participants of tournament %d: %w", tournamentID, err)
	}
	for _, p := range parts {
		if p.UserID == userID {
			return nil, nil, coded(CodeAlreadyJoined, "user %d already joined tournament %d", userID, tournamentID)
		}
		if p.Username == username {
			return nil, nil, coded(CodeDuplicateUsername, "username %q is taken in tournament %d", username, tournamentID)
		}
	}
	if tourney.MaxParticipants > 0 && len(parts) >= tourney.MaxParticipants {
		return nil, nil, coded(CodeFull, "tournament %d is full", tournamentID)
	}

	p := &serverdb.Participant{
		TournamentID: tournamentID,
		UserID:       userID,
		Username:     username,
	}
	if err := t.db.AddParticipant(ctx, p); err != nil {
		return nil, nil, fmt.Errorf("register user %d in tournament %d: %w", userID, tournamentID, err)
	}
	parts = append(parts, p)
	t.hub.JoinRoom(c, tournamentID)

	t.hub.Broadcast(tournamentID, "tournament:join", joinEvent{
		UserID:       userID,
		TournamentID: tournamentID,
		Participants: parts,
	}, nil)
	t.log.Infof("user %d joined tournament %d as %q", userID, tournamentID, username)

	return tourney, parts, nil
}

// LeaveTournament detaches the caller from the tournament room and
// announces the departure to the remaining members. The registration
// row stays; a started tournament keeps its schedule.
func (t *TournamentCoordinator) LeaveTournament(c *Conn, tournamentID int64) error {
	userID, _, ok := t.hub.User(c)
	if !ok {
		return coded(CodeForbidden, "connection is not registered")
	}
	if !t.hub.IsInRoom(c, tournamentID) {
		return coded(CodeNotFound, "user %d is not in tournament %d", userID, tournamentID)
	}

	t.hub.LeaveRoom(c, tournamentID)
	t.hub.Broadcast(tournamentID, "tournament:leave", leaveEvent{
		UserID:       userID,
		TournamentID: tournamentID,
	}, nil)
	t.log.Infof("user %d left tournament %d", userID, tournamentID)
	return nil
}

// StartTournament is creator-only. It generates the full round-robin
// schedule in one shot, moves the tournament to IN_PROGRESS and kicks
// off the first match.
func (t *TournamentCoordinator) StartTournament(ctx context.Context, c *Conn, tournamentID int64) error {
	userID, _, ok := t.hub.User(c)
	if !ok {
		return coded(CodeForbidden, "connection is not registered")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tourney, err := t.db.TournamentByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, serverdb.ErrTournamentNotFound) {
			return coded(CodeNotFound, "tournament %d not found", tournamentID)
		}
		return fmt.Errorf("look up tournament %d: %w", tournamentID, err)
	}
	if tourney.CreatorID != userID {
		return coded(CodeForbidden, "only the creator can start tournament %d", tournamentID)
	}
	if tourney.Status != serverdb.TournamentPending {
		return coded(CodeInvalidState, "tournament %d already started", tournamentID)
	}

	parts, err := t.db.ParticipantsByTournament(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("list participants of tournament %d: %w", tournamentID, err)
	}
	if len(parts) < 2 {
		return coded(CodeInsufficientParticipants, "tournament %d needs at least 2 participants", tournamentID)
	}

	matches := roundRobin(tournamentID, parts)
	if err := t.db.CreateMatches(ctx, matches); err != nil {
		return fmt.Errorf("create schedule of tournament %d: %w", tournamentID, err)
	}
	if err := t.db.UpdateTournamentStatus(ctx, tournamentID, serverdb.TournamentInProgress, nil); err != nil {
		return fmt.Errorf("mark tournament %d in progress: %w", tournamentID, err)
	}

	t.hub.Broadcast(tournamentID, "tournament:start", tournamentStartEvent{
		Message: fmt.Sprintf("Tournament %q started with %d matches", tourney.Name, len(matches)),
		Matches: matches,
	}, nil)
	t.log.Infof("tournament %d started: %d participants, %d matches", tournamentID, len(parts), len(matches))

	if _, err := t.matches.StartNextMatch(ctx, tournamentID); err != nil {
		return fmt.Errorf("start first match of tournament %d: %w", tournamentID, err)
	}
	return nil
}

// Participants returns the current roster.
func (t *TournamentCoordinator) Participants(ctx context.Context, tournamentID int64) ([]*serverdb.Participant, error) {
	return t.db.ParticipantsByTournament(ctx, tournamentID)
}

// roundRobin pairs every participant against every later one, in
// registration order. n participants yield n*(n-1)/2 matches.
func roundRobin(tournamentID int64, parts []*serverdb.Participant) []*serverdb.Match {
	var matches []*serverdb.Match
	for i := 0; i < len(parts); i++ {
		for j := i + 1; j < len(parts); j++ {
			matches = append(matches, &serverdb.Match{
				TournamentID: tournamentID,
				Player1ID:    parts[i].UserID,
				Player2ID:    parts[j].UserID,
				Status:       serverdb.MatchPending,
			})
		}
	}
	return matches
}

// handleMatchFinished advances the schedule after every completed
// match. When no PENDING match remains the tournament is finalized.
func (t *TournamentCoordinator) handleMatchFinished(ctx context.Context, m *serverdb.Match) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := t.matches.StartNextMatch(ctx, m.TournamentID)
	if err != nil {
		t.log.Errorf("advance tournament %d: %v", m.TournamentID, err)
		return
	}
	if next != nil {
		return
	}

	if err := t.finalize(ctx, m.TournamentID); err != nil {
		t.log.Errorf("finalize tournament %d: %v", m.TournamentID, err)
	}
}

func (t *TournamentCoordinator) finalize(ctx context.Context, tournamentID int64) error {
	parts, err := t.db.ParticipantsByTournament(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	matches, err := t.db.MatchesByTournament(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("list matches: %w", err)
	}

	winner := standingsWinner(parts, matches)
	var winnerID *int64
	if winner != nil {
		winnerID = &winner.UserID
	}
	if err := t.db.UpdateTournamentStatus(ctx, tournamentID, serverdb.TournamentCompleted, winnerID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	ev := tournamentFinishEvent{
		Message: "Tournament finished",
		Winner:  winner,
		Matches: matches,
	}
	if winner != nil {
		ev.Message = fmt.Sprintf("Tournament finished, %s wins with %d victories", winner.Username, winner.Wins)
		t.log.Infof("tournament %d completed, winner %d (%s) with %d wins",
			tournamentID, winner.UserID, winner.Username, winner.Wins)
	} else {
		t.log.Infof("tournament %d completed without a winner", tournamentID)
	}
	t.hub.Broadcast(tournamentID, "tournament:finish", ev, nil)
	return nil
}

// standingsWinner ranks by match wins. A two-way tie falls back to the
// head-to-head result; any remaining tie goes to the earliest
// registration.
func standingsWinner(parts []*serverdb.Participant, matches []*serverdb.Match) *winnerSummary {
	if len(parts) == 0 {
		return nil
	}

	wins := make(map[int64]int, len(parts))
	for _, m := range matches {
		if m.WinnerID != nil {
			wins[*m.WinnerID]++
		}
	}

	best := -1
	for _, p := range parts {
		if wins[p.UserID] > best {
			best = wins[p.UserID]
		}
	}

	// parts is in registration order, so tied is too.
	var tied []*serverdb.Participant
	for _, p := range parts {
		if wins[p.UserID] == best {
			tied = append(tied, p)
		}
	}

	winner := tied[0]
	if len(tied) == 2 {
		if h2h := headToHead(tied[0].UserID, tied[1].UserID, matches); h2h != nil {
			for _, p := range tied {
				if p.UserID == *h2h {
					winner = p
				}
			}
		}
	}

	return &winnerSummary{
		UserID:   winner.UserID,
		Username: winner.Username,
		Wins:     wins[winner.UserID],
	}
}

// headToHead returns the winner of the direct match between a and b,
// nil when that match has no recorded winner.
func headToHead(a, b int64, matches []*serverdb.Match) *int64 {
	for _, m := range matches {
		pair := (m.Player1ID == a && m.Player2ID == b) || (m.Player1ID == b && m.Player2ID == a)
		if pair && m.WinnerID != nil {
			return m.WinnerID
		}
	}
	return nil
}
