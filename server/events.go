package server

import (
	"github.com/vctt94/pongtourney/ponggame"
	"github.com/vctt94/pongtourney/server/serverdb"
)

// Outbound event payloads. Every server→client message is one of these
// wrapped in the `{event,data}` envelope.

type errorEvent struct {
	Message string `json:"message"`
}

type joinEvent struct {
	UserID       int64                  `json:"userId"`
	TournamentID int64                  `json:"tournamentId"`
	Participants []*serverdb.Participant `json:"participants"`
}

type leaveEvent struct {
	UserID       int64 `json:"userId"`
	TournamentID int64 `json:"tournamentId"`
}

type tournamentAckEvent struct {
	Tournament   *serverdb.Tournament    `json:"tournament"`
	Participants []*serverdb.Participant `json:"participants"`
}

type tournamentStartEvent struct {
	Message string            `json:"message"`
	Matches []*serverdb.Match `json:"matches"`
}

type winnerSummary struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Wins     int    `json:"wins"`
}

type tournamentFinishEvent struct {
	Message string            `json:"message"`
	Winner  *winnerSummary    `json:"winner"`
	Matches []*serverdb.Match `json:"matches"`
}

type matchStartEvent struct {
	MatchID   int64 `json:"matchId"`
	Player1ID int64 `json:"player1Id"`
	Player2ID int64 `json:"player2Id"`
}

type matchReadyEvent struct {
	Player1Ready bool `json:"player1Ready"`
	Player2Ready bool `json:"player2Ready"`
}

type matchUpdateEvent struct {
	State ponggame.State `json:"state"`
}

type matchEndEvent struct {
	WinnerID *int64 `json:"winnerId"`
}

type chatEvent struct {
	UserID       int64  `json:"userId"`
	TournamentID int64  `json:"tournamentId"`
	Message      string `json:"message"`
	Timestamp    int64  `json:"timestamp"`
}
