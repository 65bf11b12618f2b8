package ponggame

import (
	"bytes"
	"testing"

	"github.com/decred/slog"
	"github.com/ndabAP/ping-pong/engine"
	"github.com/stretchr/testify/assert"
)

func newTestEngine() *CanvasEngine {
	return NewEngine(DefaultCanvasWidth, DefaultCanvasHeight, slog.Disabled)
}

func TestEngine_WallBounce(t *testing.T) {
	tests := []struct {
		name   string
		ballY  float64
		dy     float64
		wantDY float64
	}{
		{"top wall inverts dy", 2, -6, 6},
		{"bottom wall inverts dy", DefaultCanvasHeight - 2, 6, -6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			e.SetBall(DefaultCanvasWidth/2, tt.ballY, 0, tt.dy)

			e.Tick()

			snap := e.Snapshot()
			assert.GreaterOrEqual(t, snap.Ball.Y, 0.0)
			assert.LessOrEqual(t, snap.Ball.Y, DefaultCanvasHeight)
			assert.Equal(t, tt.wantDY, snap.Ball.DY)
		})
	}
}

func TestEngine_PaddleDeflection(t *testing.T) {
	e := newTestEngine()
	// Paddles sit centered after Reset; aim the ball at the left one.
	paddleY := (DefaultCanvasHeight - DefaultPaddleHeight) / 2
	e.SetBall(DefaultPaddleWidth+3, paddleY+50, -6, 0)

	e.Tick()

	snap := e.Snapshot()
	assert.Equal(t, DefaultPaddleWidth, snap.Ball.X, "ball clamped to paddle face")
	assert.Equal(t, ballSpeed, snap.Ball.DX, "horizontal velocity forced rightward")
	assert.Equal(t, Scores{}, snap.Scores, "deflection must not score")
}

func TestEngine_RightPaddleDeflection(t *testing.T) {
	e := newTestEngine()
	paddleY := (DefaultCanvasHeight - DefaultPaddleHeight) / 2
	e.SetBall(DefaultCanvasWidth-DefaultPaddleWidth-3, paddleY+50, 6, 0)

	e.Tick()

	snap := e.Snapshot()
	assert.Equal(t, DefaultCanvasWidth-DefaultPaddleWidth, snap.Ball.X)
	assert.Equal(t, -ballSpeed, snap.Ball.DX, "horizontal velocity forced leftward")
}

func TestEngine_ScoringRecentersBall(t *testing.T) {
	e := newTestEngine()
	// Move the left paddle out of the way and drive the ball past it.
	e.SetPaddle(1, DefaultCanvasHeight-DefaultPaddleHeight)
	e.SetBall(3, 30, -6, 0)

	e.Tick()

	snap := e.Snapshot()
	assert.Equal(t, 1, snap.Scores.Right, "player 2 scores on the left edge")
	assert.Equal(t, 0, snap.Scores.Left)
	assert.Equal(t, DefaultCanvasWidth/2, snap.Ball.X)
	assert.Equal(t, DefaultCanvasHeight/2, snap.Ball.Y)
	assert.Equal(t, ballSpeed, abs(snap.Ball.DX), "fresh serve keeps base speed")
	assert.Equal(t, ballSpeed, abs(snap.Ball.DY))
}

func TestEngine_WinCondition(t *testing.T) {
	e := newTestEngine()
	e.SetMaxScore(2)
	e.SetPaddle(2, 0)

	// Drive two goals past the right edge, ball aimed below the paddle.
	for i := 0; i < 2; i++ {
		e.SetBall(DefaultCanvasWidth-3, DefaultCanvasHeight-20, 6, 0)
		e.Tick()
	}

	assert.ErrorIs(t, e.Error(), engine.ErrP1Win)
	assert.EqualValues(t, 1, e.Winner())

	// A terminal engine ignores further ticks.
	snap := e.Snapshot()
	e.Tick()
	assert.Equal(t, snap, e.Snapshot())
}

func TestEngine_LogsScoringTransitions(t *testing.T) {
	var buf bytes.Buffer
	log := slog.NewBackend(&buf).Logger("TEST")
	log.SetLevel(slog.LevelDebug)

	e := NewEngine(DefaultCanvasWidth, DefaultCanvasHeight, log)
	e.SetMaxScore(1)
	e.SetPaddle(1, DefaultCanvasHeight-DefaultPaddleHeight)
	e.SetBall(3, 30, -6, 0)

	e.Tick()

	out := buf.String()
	assert.Contains(t, out, "player 2 scores")
	assert.Contains(t, out, "player 2 wins")
}

func TestEngine_SetPaddleClamps(t *testing.T) {
	tests := []struct {
		name  string
		y     float64
		wantY float64
	}{
		{"below range", -50, 0},
		{"in range", 200, 200},
		{"above range", DefaultCanvasHeight + 100, DefaultCanvasHeight - DefaultPaddleHeight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			e.SetPaddle(1, tt.y)
			e.SetPaddle(2, tt.y)

			snap := e.Snapshot()
			assert.Equal(t, tt.wantY, snap.Paddles.Left.Y)
			assert.Equal(t, tt.wantY, snap.Paddles.Right.Y)
		})
	}
}

func TestEngine_ResetCentersEverything(t *testing.T) {
	e := newTestEngine()
	e.SetBall(3, 30, -6, 0)
	e.SetPaddle(1, 0)
	e.Tick()

	e.Reset()

	snap := e.Snapshot()
	assert.Equal(t, Scores{}, snap.Scores)
	assert.Equal(t, DefaultCanvasWidth/2, snap.Ball.X)
	assert.Equal(t, DefaultCanvasHeight/2, snap.Ball.Y)
	assert.Equal(t, (DefaultCanvasHeight-DefaultPaddleHeight)/2, snap.Paddles.Left.Y)
	assert.NoError(t, e.Error())
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
