// Package timecode implements SMPTE timecode arithmetic over a frame-count
// representation. A timecode is stored as an absolute frame number within a
// 24-hour day; drop-frame handling is confined to parsing and formatting, so
// advancing a timecode is a single integer addition.
package timecode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTimecode is returned when a timecode string cannot be parsed or
// names a field out of range, including drop-frame skipped labels.
var ErrInvalidTimecode = errors.New("invalid timecode")

// Frame is an absolute frame number within a 24-hour timecode day.
type Frame int64

// Zero is frame 00:00:00:00 under any framerate.
const Zero Frame = 0

// Parse converts "HH:MM:SS:FF" text to a frame number under the given rate.
// Each field must be exactly two decimal digits; out-of-range fields and
// drop-frame skipped labels are rejected.
func Parse(text string, rate Framerate) (Frame, error) {
	parts := strings.Split(text, ":")
	if len(parts) != 4 {
		return 0, fmt.Errorf("%w: %q (want HH:MM:SS:FF)", ErrInvalidTimecode, text)
	}
	var fields [4]int
	for i, p := range parts {
		n, ok := twoDigits(p)
		if !ok {
			return 0, fmt.Errorf("%w: %q (want HH:MM:SS:FF)", ErrInvalidTimecode, text)
		}
		fields[i] = n
	}
	return FromFields(fields[0], fields[1], fields[2], fields[3], rate)
}

// FromFields converts hour/minute/second/frame fields to a frame number.
// For drop-frame rates the skipped labels up to the given minute are
// subtracted per the SMPTE convention.
func FromFields(h, m, s, f int, rate Framerate) (Frame, error) {
	if h < 0 || h > 23 || m < 0 || m > 59 || s < 0 || s > 59 || f < 0 || f >= rate.Timebase {
		return 0, fmt.Errorf("%w: field out of range for %s", ErrInvalidTimecode, rate.Key)
	}
	drop := rate.DropPerMinute()
	if drop > 0 && s == 0 && m%10 != 0 && f < drop {
		return 0, fmt.Errorf("%w: %02d:%02d:%02d:%02d is a dropped label at %s",
			ErrInvalidTimecode, h, m, s, f, rate.Key)
	}
	n := Frame(((h*60+m)*60+s)*rate.Timebase + f)
	if drop > 0 {
		totalMin := h*60 + m
		n -= Frame(drop * (totalMin - totalMin/10))
	}
	return n, nil
}

// Fields converts a frame number back to display fields.
func Fields(n Frame, rate Framerate) (h, m, s, f int) {
	n %= rate.FramesPerDay()
	if n < 0 {
		n += rate.FramesPerDay()
	}

	tb := Frame(rate.Timebase)
	drop := Frame(rate.DropPerMinute())
	var totalMin, inMinute Frame
	if drop == 0 {
		totalMin = n / (tb * 60)
		inMinute = n % (tb * 60)
	} else {
		// Each 10-minute block holds one full minute followed by nine
		// minutes that skip `drop` labels at second zero.
		perMin := tb*60 - drop
		perTen := tb*60 + 9*perMin
		ten := n / perTen
		rem := n % perTen
		if rem < tb*60 {
			totalMin = ten * 10
			inMinute = rem
		} else {
			rem -= tb * 60
			totalMin = ten*10 + 1 + rem/perMin
			inMinute = rem%perMin + drop
		}
	}

	h = int(totalMin / 60)
	m = int(totalMin % 60)
	s = int(inMinute / tb)
	f = int(inMinute % tb)
	return h, m, s, f
}

// Format renders a frame number as "HH:MM:SS:FF". The drop-frame nature of
// the rate is implicit; the separator is always ":".
func Format(n Frame, rate Framerate) string {
	h, m, s, f := Fields(n, rate)
	return fmt.Sprintf("%02d:%02d:%02d:%02d", h, m, s, f)
}

// Advance moves a frame number forward by delta frames, wrapping modulo the
// 24-hour frame total.
func Advance(n Frame, rate Framerate, delta int64) Frame {
	day := rate.FramesPerDay()
	n = (n + Frame(delta)) % day
	if n < 0 {
		n += day
	}
	return n
}

// twoDigits parses an exactly-two-digit decimal field. Anything else fails,
// so that formatting a parsed timecode reproduces the input byte for byte.
func twoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}
