package serverdb

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrDuplicateEntry     = errors.New("entry already stored")
)

type TournamentStatus string

const (
	TournamentPending    TournamentStatus = "PENDING"
	TournamentInProgress TournamentStatus = "IN_PROGRESS"
	TournamentCompleted  TournamentStatus = "COMPLETED"
)

type MatchStatus string

const (
	MatchPending    MatchStatus = "PENDING"
	MatchInProgress MatchStatus = "IN_PROGRESS"
	MatchCompleted  MatchStatus = "COMPLETED"
)

// Tournament is the persisted tournament entity. WinnerID is set only
// once the status reaches COMPLETED.
type Tournament struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	CreatorID       int64            `json:"creatorId"`
	MaxParticipants int              `json:"maxParticipants"` // 0 means uncapped
	Status          TournamentStatus `json:"status"`
	WinnerID        *int64           `json:"winnerId,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Participant ties a user to a tournament under a display name. One row
// per (user, tournament); display names unique within a tournament.
type Participant struct {
	ID           int64  `json:"id"`
	TournamentID int64  `json:"tournamentId"`
	UserID       int64  `json:"userId"`
	Username     string `json:"username"`
}

// Match is one round-robin pairing. The full set for a tournament is
// generated once, at start.
type Match struct {
	ID           int64       `json:"id"`
	TournamentID int64       `json:"tournamentId"`
	Player1ID    int64       `json:"player1Id"`
	Player2ID    int64       `json:"player2Id"`
	Player1Score int         `json:"player1Score"`
	Player2Score int         `json:"player2Score"`
	Status       MatchStatus `json:"status"`
	WinnerID     *int64      `json:"winnerId,omitempty"`
}

// ServerDB is the storage contract consumed by the coordinators. The
// schema behind it belongs to the persistence layer, not to this module.
type ServerDB interface {
	CreateTournament(ctx context.Context, t *Tournament) error
	TournamentByID(ctx context.Context, id int64) (*Tournament, error)
	// ActiveTournamentByName returns the creator's non-completed
	// tournament with that exact name, or nil when there is none.
	ActiveTournamentByName(ctx context.Context, creatorID int64, name string) (*Tournament, error)
	UpdateTournamentStatus(ctx context.Context, id int64, status TournamentStatus, winnerID *int64) error

	AddParticipant(ctx context.Context, p *Participant) error
	// ParticipantsByTournament returns participants in insertion order.
	ParticipantsByTournament(ctx context.Context, tournamentID int64) ([]*Participant, error)

	CreateMatches(ctx context.Context, matches []*Match) error
	MatchByID(ctx context.Context, id int64) (*Match, error)
	// MatchesByTournament returns matches ordered by id.
	MatchesByTournament(ctx context.Context, tournamentID int64) ([]*Match, error)
	// NextPendingMatch returns the lowest-id PENDING match, or nil when
	// none remain.
	NextPendingMatch(ctx context.Context, tournamentID int64) (*Match, error)
	UpdateMatchStatus(ctx context.Context, id int64, status MatchStatus) error
	FinishMatch(ctx context.Context, id int64, winnerID *int64, score1, score2 int) error

	Close() error
}
