package radio

import (
	"context"
	"strings"

	"github.com/satindergrewal/fxradio/internal/audio"
)

// CommandResult is the reply to a controller command.
type CommandResult struct {
	Result string `json:"result"`
}

// Status is a snapshot of the engine.
type Status struct {
	State     State        `json:"state"`
	Track     *audio.Track `json:"track,omitempty"`
	ByteRate  int64        `json:"byte_rate,omitempty"`
	Listeners int          `json:"listeners"`
}

// HandleCommand maps controller text onto the engine: anything containing
// "start" starts, "stop" stops, and everything else names an effect.
// Matching is case-insensitive. Only an unknown effect is an error.
func (e *Engine) HandleCommand(ctx context.Context, command string) (CommandResult, error) {
	cmd := strings.ToLower(strings.TrimSpace(command))
	e.log.Info().Str("command", cmd).Msg("command received")

	switch {
	case strings.Contains(cmd, "start"):
		e.Start(ctx)
	case strings.Contains(cmd, "stop"):
		e.Stop()
	default:
		if err := e.AppendEffect(cmd); err != nil {
			return CommandResult{}, err
		}
	}
	return CommandResult{Result: "ok"}, nil
}

// Status reports the current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	sess := e.session
	st := Status{State: StateIdle}
	if sess != nil {
		track := sess.track
		st.State = StatePlaying
		st.Track = &track
		st.ByteRate = sess.byteRate
	}
	e.mu.Unlock()

	st.Listeners = e.registry.Len()
	return st
}
