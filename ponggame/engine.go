package ponggame

import (
	"errors"
	"math/rand"

	"github.com/decred/slog"
	"github.com/ndabAP/ping-pong/engine"
)

// New returns a CanvasEngine for the given game geometry.
func New(g engine.Game) *CanvasEngine {
	e := new(CanvasEngine)
	e.Game = g
	e.MaxScore = DefaultMaxScore
	e.log = slog.Disabled
	return e
}

// NewEngine creates a CanvasEngine with the standard match geometry.
func NewEngine(width, height float64, log slog.Logger) *CanvasEngine {
	game := engine.NewGame(
		width, height,
		engine.NewPlayer(DefaultPaddleWidth, DefaultPaddleHeight),
		engine.NewPlayer(DefaultPaddleWidth, DefaultPaddleHeight),
		engine.NewBall(DefaultBallSize, DefaultBallSize),
	)

	canvasEngine := New(game)
	canvasEngine.SetLogger(log)
	canvasEngine.Reset()

	return canvasEngine
}

// SetLogger sets the engine logger.
func (e *CanvasEngine) SetLogger(log slog.Logger) *CanvasEngine {
	e.log = log
	return e
}

// SetMaxScore overrides the winning score.
func (e *CanvasEngine) SetMaxScore(n int) *CanvasEngine {
	if n <= 0 {
		panic("max score must be greater zero")
	}
	e.MaxScore = n
	return e
}

// Error returns the terminal condition of the match, nil while running.
func (e *CanvasEngine) Error() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Err
}

// Reset zeroes the scores, centers the paddles and serves the ball from
// the middle in a random diagonal direction.
func (e *CanvasEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.P1Score, e.P2Score = 0, 0
	e.Err = nil
	e.P1Pos = Vec2{0, (e.Game.Height - e.Game.P1.Height) / 2}
	e.P2Pos = Vec2{e.Game.Width - e.Game.P2.Width, (e.Game.Height - e.Game.P2.Height) / 2}
	e.resetBall()
}

// Tick advances the simulation by exactly one step. The caller schedules
// ticks; two ticks never overlap because the state mutation happens
// entirely under the engine lock.
func (e *CanvasEngine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Err != nil {
		return
	}
	e.tick()
}

func (e *CanvasEngine) tick() {
	e.BallPos = e.BallPos.Add(e.BallVel)

	// Vertical walls: clamp back into bounds and invert dy.
	if e.BallPos.Y <= 0 {
		e.BallPos.Y = 0
		e.BallVel.Y = -e.BallVel.Y
	} else if e.BallPos.Y >= e.Game.Height {
		e.BallPos.Y = e.Game.Height
		e.BallVel.Y = -e.BallVel.Y
	}

	// Left paddle: force the ball rightward on contact.
	if e.BallPos.X <= e.Game.P1.Width &&
		e.BallPos.Y >= e.P1Pos.Y && e.BallPos.Y <= e.P1Pos.Y+e.Game.P1.Height {
		e.BallPos.X = e.Game.P1.Width
		e.BallVel.X = ballSpeed
	}

	// Right paddle: symmetric, force the ball leftward.
	if e.BallPos.X >= e.Game.Width-e.Game.P2.Width &&
		e.BallPos.Y >= e.P2Pos.Y && e.BallPos.Y <= e.P2Pos.Y+e.Game.P2.Height {
		e.BallPos.X = e.Game.Width - e.Game.P2.Width
		e.BallVel.X = -ballSpeed
	}

	// Scoring. The win condition is only evaluated here, after a score.
	switch {
	case e.BallPos.X <= 0:
		e.P2Score++
		e.log.Debugf("player 2 scores, %d-%d", e.P1Score, e.P2Score)
		e.resetBall()
		if e.P2Score >= e.MaxScore {
			e.Err = engine.ErrP2Win
			e.log.Debugf("player 2 wins %d-%d", e.P1Score, e.P2Score)
		}
	case e.BallPos.X >= e.Game.Width:
		e.P1Score++
		e.log.Debugf("player 1 scores, %d-%d", e.P1Score, e.P2Score)
		e.resetBall()
		if e.P1Score >= e.MaxScore {
			e.Err = engine.ErrP1Win
			e.log.Debugf("player 1 wins %d-%d", e.P1Score, e.P2Score)
		}
	}
}

// resetBall re-centers the ball and serves it in a fresh pseudo-random
// diagonal direction, each axis sign chosen independently.
func (e *CanvasEngine) resetBall() {
	e.BallPos = Vec2{e.Game.Width / 2, e.Game.Height / 2}
	e.BallVel = Vec2{randSign(), randSign()}.Scale(ballSpeed)
}

func randSign() float64 {
	if rand.Intn(2) == 0 {
		return -1
	}
	return 1
}

// SetPaddle applies a player's requested paddle position. The requested y
// is clamped into [0, height-paddleHeight]; anything else about the input
// has already been validated by the caller.
func (e *CanvasEngine) SetPaddle(playerNumber int32, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch playerNumber {
	case 1:
		e.P1Pos.Y = clamp(y, 0, e.Game.Height-e.Game.P1.Height)
	case 2:
		e.P2Pos.Y = clamp(y, 0, e.Game.Height-e.Game.P2.Height)
	}
}

// SetBall places the ball at an explicit position and velocity. Used to
// restore a known state, mainly from tests.
func (e *CanvasEngine) SetBall(x, y, dx, dy float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.BallPos = Vec2{x, y}
	e.BallVel = Vec2{dx, dy}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Snapshot returns a consistent copy of the current state. The Players
// section is left zero for the coordinator to fill.
func (e *CanvasEngine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return State{
		Ball: Ball{
			X:  e.BallPos.X,
			Y:  e.BallPos.Y,
			DX: e.BallVel.X,
			DY: e.BallVel.Y,
		},
		Paddles: Paddles{
			Left:  Paddle{Y: e.P1Pos.Y, Height: e.Game.P1.Height},
			Right: Paddle{Y: e.P2Pos.Y, Height: e.Game.P2.Height},
		},
		Canvas: Canvas{Width: e.Game.Width, Height: e.Game.Height},
		Scores: Scores{Left: e.P1Score, Right: e.P2Score},
	}
}

// CurrentScores returns the live scores.
func (e *CanvasEngine) CurrentScores() (p1, p2 int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.P1Score, e.P2Score
}

// Winner reports 1 or 2 once a side has won, 0 while the match runs.
func (e *CanvasEngine) Winner() int32 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch {
	case errors.Is(e.Err, engine.ErrP1Win):
		return 1
	case errors.Is(e.Err, engine.ErrP2Win):
		return 2
	default:
		return 0
	}
}
