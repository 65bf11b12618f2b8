package server

import (
	"encoding/json"
	"errors"
	"time"
)

// Inbound event payloads.

type createRequest struct {
	Name            string `json:"name"`
	MaxParticipants int    `json:"maxParticipants"`
}

type joinRequest struct {
	TournamentID int64  `json:"tournamentId"`
	Username     string `json:"username"`
}

type leaveRequest struct {
	TournamentID int64 `json:"tournamentId"`
}

type startRequest struct {
	TournamentID int64 `json:"tournamentId"`
}

type chatRequest struct {
	TournamentID int64  `json:"tournamentId"`
	Message      string `json:"message"`
}

type readyRequest struct {
	TournamentID int64 `json:"tournamentId"`
	MatchID      int64 `json:"matchId"`
}

type moveRequest struct {
	TournamentID int64   `json:"tournamentId"`
	MatchID      int64   `json:"matchId"`
	Position     float64 `json:"position"`
}

type stateRequest struct {
	TournamentID int64 `json:"tournamentId"`
	MatchID      int64 `json:"matchId"`
}

func (s *Server) routes() {
	s.router.Handle("tournament:create", s.handleTournamentCreate)
	s.router.Handle("tournament:join", s.handleTournamentJoin)
	s.router.Handle("tournament:leave", s.handleTournamentLeave)
	s.router.Handle("tournament:start", s.handleTournamentStart)
	s.router.Handle("tournament:chat", s.handleTournamentChat)
	s.router.Handle("match:ready", s.handleMatchReady)
	s.router.Handle("match:move", s.handleMatchMove)
	s.router.Handle("match:getState", s.handleMatchState)
}

// fail reports a handler error to the originating connection. Domain
// rejections travel as-is; anything else is logged and masked.
func (s *Server) fail(c *Conn, err error) {
	var ce *CodedError
	if errors.As(err, &ce) {
		c.sendEvent("error", errorEvent{Message: ce.Reason})
		return
	}
	s.log.Errorf("request on conn %s failed: %v", c.id, err)
	c.sendEvent("error", errorEvent{Message: "internal server error"})
}

func (s *Server) handleTournamentCreate(c *Conn, data json.RawMessage) {
	var req createRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendEvent("error", errorEvent{Message: "Invalid message format"})
		return
	}

	tourney, parts, err := s.tournaments.CreateTournament(s.ctx, c, req.Name, req.MaxParticipants)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.sendEvent("tournament:created", tournamentAckEvent{Tournament: tourney, Participants: parts})
}

func (s *Server) handleTournamentJoin(c *Conn, data json.RawMessage) {
	var req joinRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendEvent("error", errorEvent{Message: "Invalid message format"})
		return
	}

	// Missing display name falls back to the session username.
	if req.Username == "" {
		_, username, ok := s.hub.User(c)
		if !ok {
			return
		}
		req.Username = username
	}

	tourney, parts, err := s.tournaments.JoinTournament(s.ctx, c, req.TournamentID, req.Username)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.sendEvent("tournament:joined", tournamentAckEvent{Tournament: tourney, Participants: parts})
}

func (s *Server) handleTournamentLeave(c *Conn, data json.RawMessage) {
	var req leaveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendEvent("error", errorEvent{Message: "Invalid message format"})
		return
	}

	if err := s.tournaments.LeaveTournament(c, req.TournamentID); err != nil {
		s.fail(c, err)
	}
}

func (s *Server) handleTournamentStart(c *Conn, data json.RawMessage) {
	var req startRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendEvent("error", errorEvent{Message: "Invalid message format"})
		return
	}

	if err := s.tournaments.StartTournament(s.ctx, c, req.TournamentID); err != nil {
		s.fail(c, err)
	}
}

// handleTournamentChat fans a message out to the tournament room,
// sender included. Membership is required; the roster row alone is not
// enough, the sender must currently be in the room.
func (s *Server) handleTournamentChat(c *Conn, data json.RawMessage) {
	var req chatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendEvent("error", errorEvent{Message: "Invalid message format"})
		return
	}

	userID, _, ok := s.hub.User(c)
	if !ok {
		return
	}
	if !s.hub.IsInRoom(c, req.TournamentID) {
		c.sendEvent("error", errorEvent{Message: "not in this tournament"})
		return
	}
	if req.Message == "" {
		return
	}

	s.hub.Broadcast(req.TournamentID, "tournament:chat", chatEvent{
		UserID:       userID,
		TournamentID: req.TournamentID,
		Message:      req.Message,
		Timestamp:    time.Now().Unix(),
	}, nil)
}

func (s *Server) handleMatchReady(c *Conn, data json.RawMessage) {
	var req readyRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendEvent("error", errorEvent{Message: "Invalid message format"})
		return
	}

	userID, _, ok := s.hub.User(c)
	if !ok {
		return
	}
	if err := s.matches.SetPlayerReady(req.MatchID, userID); err != nil {
		s.fail(c, err)
	}
}

// handleMatchMove applies paddle input. Stale or foreign input is
// dropped without a reply; move traffic is too frequent to argue about.
func (s *Server) handleMatchMove(c *Conn, data json.RawMessage) {
	var req moveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	userID, _, ok := s.hub.User(c)
	if !ok {
		return
	}
	s.matches.HandleInput(req.MatchID, userID, req.Position)
}

func (s *Server) handleMatchState(c *Conn, data json.RawMessage) {
	var req stateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendEvent("error", errorEvent{Message: "Invalid message format"})
		return
	}

	state, ok := s.matches.StateSnapshot(req.MatchID)
	if !ok {
		s.fail(c, coded(CodeNotFound, "match %d is not running", req.MatchID))
		return
	}
	c.sendEvent("match:update", matchUpdateEvent{State: state})
}
