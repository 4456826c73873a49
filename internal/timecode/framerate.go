package timecode

import "errors"

// ErrUnknownFramerate is returned when a framerate key is not in the
// supported set.
var ErrUnknownFramerate = errors.New("unknown framerate")

// Framerate describes one supported broadcast rate. The Key is the stable
// wire identifier; Nominal is never compared for equality.
type Framerate struct {
	Key       string  // wire key, e.g. "29.97"
	Nominal   float64 // real frames per second, e.g. 29.97
	Timebase  int     // integer frames per second used for display
	DropFrame bool    // true only for 29.97 and 59.94
}

// rates is the closed set of supported framerates, in wire order.
var rates = []Framerate{
	{Key: "23.976", Nominal: 23.976, Timebase: 24},
	{Key: "24", Nominal: 24, Timebase: 24},
	{Key: "29.97", Nominal: 29.97, Timebase: 30, DropFrame: true},
	{Key: "30", Nominal: 30, Timebase: 30},
	{Key: "50", Nominal: 50, Timebase: 50},
	{Key: "59.94", Nominal: 59.94, Timebase: 60, DropFrame: true},
	{Key: "60", Nominal: 60, Timebase: 60},
}

// Lookup resolves a wire key to its Framerate.
func Lookup(key string) (Framerate, error) {
	for _, r := range rates {
		if r.Key == key {
			return r, nil
		}
	}
	return Framerate{}, ErrUnknownFramerate
}

// Keys returns the supported framerate keys in wire order.
func Keys() []string {
	keys := make([]string, len(rates))
	for i, r := range rates {
		keys[i] = r.Key
	}
	return keys
}

// DropPerMinute is the number of frame labels skipped at the start of each
// non-tenth minute: 2 for 29.97, 4 for 59.94, 0 otherwise.
func (r Framerate) DropPerMinute() int {
	if !r.DropFrame {
		return 0
	}
	return r.Timebase / 15
}

// FramesPerDay is the number of distinct frames in a 24-hour timecode day.
// For drop-frame rates the per-minute skips are subtracted: of the 1440
// minutes in a day, 1296 drop labels (every minute not divisible by 10).
func (r Framerate) FramesPerDay() Frame {
	total := Frame(r.Timebase) * 86400
	return total - Frame(r.DropPerMinute())*1296
}

// Interval returns the nominal frame period in seconds.
func (r Framerate) Interval() float64 {
	return 1.0 / r.Nominal
}
