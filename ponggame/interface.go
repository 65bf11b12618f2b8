package ponggame

import (
	"sync"

	"github.com/decred/slog"
	"github.com/ndabAP/ping-pong/engine"
)

// Canvas and paddle geometry shared by every match. Clients receive these
// with every state snapshot so they never have to hardcode dimensions.
const (
	DefaultCanvasWidth  = 800.0
	DefaultCanvasHeight = 600.0
	DefaultPaddleWidth  = 10.0
	DefaultPaddleHeight = 100.0
	DefaultBallSize     = 10.0

	// DefaultTickHz is the simulation rate. One tick every 1000/30 ms.
	DefaultTickHz = 30

	// DefaultMaxScore ends the match when either side reaches it.
	DefaultMaxScore = 5

	// ballSpeed is the horizontal speed forced on paddle contact, in
	// canvas units per tick.
	ballSpeed = 6.0
)

type Vec2 struct {
	X, Y float64
}

func (v Vec2) Add(w Vec2) Vec2 {
	return Vec2{v.X + w.X, v.Y + w.Y}
}

func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{v.X * s, v.Y * s}
}

// CanvasEngine owns the authoritative physics state of one match: ball,
// two paddles and scores. It is advanced exclusively through Tick, one
// call per simulation step; the caller owns the timer.
type CanvasEngine struct {
	Game engine.Game

	MaxScore int

	// State
	P1Score, P2Score int
	BallPos, BallVel Vec2
	P1Pos, P2Pos     Vec2

	// Err holds the terminal condition of the match, nil while running.
	Err error

	log slog.Logger

	mu sync.RWMutex
}

// Ball is the ball part of a state snapshot.
type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// Paddle is one paddle in a state snapshot.
type Paddle struct {
	Y      float64 `json:"y"`
	Height float64 `json:"height"`
}

// Paddles groups both paddles by side.
type Paddles struct {
	Left  Paddle `json:"left"`
	Right Paddle `json:"right"`
}

// Canvas carries the logical playfield dimensions.
type Canvas struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Scores holds live scores by side.
type Scores struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Players identifies the participants and their readiness. Filled in by
// the match coordinator, not by the engine.
type Players struct {
	Player1ID    int64 `json:"player1Id"`
	Player2ID    int64 `json:"player2Id"`
	Player1Ready bool  `json:"player1Ready"`
	Player2Ready bool  `json:"player2Ready"`
}

// State is one consistent snapshot of a running match, taken atomically
// with respect to ticks.
type State struct {
	Ball    Ball    `json:"ball"`
	Paddles Paddles `json:"paddles"`
	Canvas  Canvas  `json:"canvas"`
	Scores  Scores  `json:"scores"`
	Players Players `json:"players"`
}
