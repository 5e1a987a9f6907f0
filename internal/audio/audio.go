package audio

import "errors"

const (
	// FallbackBitRate is used when the bitrate of a track cannot be probed (bits/s).
	FallbackBitRate int64 = 128000
	// BitRateDivisor converts bits/s into bytes/s for pacing.
	BitRateDivisor = 8
	// DefaultChunkSize is the buffering unit paced out per step (bytes).
	DefaultChunkSize = 4096
)

var (
	// ErrEffectNotFound is returned when no effect name matches a request.
	ErrEffectNotFound = errors.New("effect not found")
	// ErrProbeFailed marks a bitrate probe that could not produce a rate.
	ErrProbeFailed = errors.New("bitrate probe failed")
)

// Track identifies the audio file played by a session.
type Track struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	BitRate int64  `json:"bit_rate"` // bits/s, filled by probing on start
}

// ByteRate is the pacing rate for the track in bytes/s.
func (t Track) ByteRate() int64 {
	return t.BitRate / BitRateDivisor
}
