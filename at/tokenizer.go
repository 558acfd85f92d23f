package at

import (
	"strconv"
	"strings"
	"time"
)

// Line is a classified modem text line.
type Line struct {
	Kind Kind
	// Text is the raw line without its terminator.
	Text string
	// IP is set for KindIP.
	IP string
	// Time is set for KindClock.
	Time time.Time
}

// Classify identifies the nature of a modem output line. Literal markers are
// compared verbatim, an address line is recognized by exactly three '.'
// separators and a clock reply by its prefix.
func Classify(line string) Line {
	l := Line{Kind: KindUnknown, Text: line}

	// Direct matches
	switch line {
	case OK:
		l.Kind = KindOK
		return l
	case ERROR:
		l.Kind = KindError
		return l
	case UrcSMSReady:
		l.Kind = KindSMSReady
		return l
	case Attached:
		l.Kind = KindAttached
		return l
	case ShutOK:
		l.Kind = KindShutOK
		return l
	case ConnectOK, Connect:
		l.Kind = KindConnect
		return l
	case ConnectFail:
		l.Kind = KindConnectFail
		return l
	case Closed:
		l.Kind = KindClosed
		return l
	}

	// Structural and prefix matches
	switch {
	case strings.HasPrefix(line, "+CME ERROR"):
		l.Kind = KindError
	case strings.Count(line, ".") == 3:
		l.Kind = KindIP
		l.IP = strings.TrimSpace(line)
	case strings.HasPrefix(line, ClockPrefix):
		if t, ok := parseClock(line); ok {
			l.Kind = KindClock
			l.Time = t
		}
	}
	return l
}

// parseClock reads the fixed-offset digit pairs of a +CCLK reply:
//
//	+CCLK: "24/05/17,10:20:30+08"
//	        ^8 ^11^14 ^17^20^23^25
//
// The optional zone is a signed count of quarter hours.
func parseClock(line string) (time.Time, bool) {
	const base = len(ClockPrefix) + 1 // skip the opening quote
	if len(line) < base+17 || line[base-1] != '"' {
		return time.Time{}, false
	}

	var f [6]int
	for i := range f {
		v, err := strconv.Atoi(line[base+3*i : base+3*i+2])
		if err != nil {
			return time.Time{}, false
		}
		f[i] = v
	}
	if f[1] < 1 || f[1] > 12 || f[2] < 1 || f[2] > 31 || f[3] > 23 || f[4] > 59 || f[5] > 59 {
		return time.Time{}, false
	}

	loc := time.UTC
	if rest := line[base+17:]; len(rest) >= 2 && (rest[0] == '+' || rest[0] == '-') {
		end := 1
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		if q, err := strconv.Atoi(rest[1:end]); err == nil && end > 1 {
			offset := q * 15 * 60
			if rest[0] == '-' {
				offset = -offset
			}
			loc = time.FixedZone("", offset)
		}
	}

	return time.Date(2000+f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], 0, loc), true
}
