package server

import (
	"encoding/json"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"
)

// testConn builds a connection with no socket behind it. Everything the
// tests need lands in the send queue.
func testConn() *Conn {
	return newConn(nil, slog.Disabled)
}

type queuedEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// drain empties the connection's send queue.
func drain(t *testing.T, c *Conn) []queuedEvent {
	t.Helper()

	var out []queuedEvent
	for {
		select {
		case b := <-c.send:
			var ev queuedEvent
			require.NoError(t, json.Unmarshal(b, &ev))
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventNames(evs []queuedEvent) []string {
	names := make([]string, len(evs))
	for i, ev := range evs {
		names[i] = ev.Event
	}
	return names
}

// lastEvent drains the queue and decodes the payload of the final event,
// requiring it to carry the given name.
func lastEvent(t *testing.T, c *Conn, event string, into any) {
	t.Helper()

	evs := drain(t, c)
	require.NotEmpty(t, evs, "no events queued on connection")
	last := evs[len(evs)-1]
	require.Equal(t, event, last.Event)
	require.NoError(t, json.Unmarshal(last.Data, into))
}
