package qti

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a QTI duration value: a non-negative span of time that
// travels in ISO-8601 textual form (PnDTnHnMnS). Calendar components
// (years, months) are rejected because their length is ambiguous.
type Duration time.Duration

// DurationOf converts a time.Duration. Negative spans are clamped to
// zero; the engine only ever accumulates forward.
func DurationOf(d time.Duration) Duration {
	if d < 0 {
		return 0
	}
	return Duration(d)
}

// ParseISODuration parses the QTI profile of ISO-8601 durations:
// P[nD][T[nH][nM][n[.fff]S]]. Weeks, years, and months are rejected.
func ParseISODuration(s string) (Duration, error) {
	orig := s
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("invalid ISO duration %q: missing P designator", orig)
	}
	s = s[1:]
	if s == "" {
		return 0, fmt.Errorf("invalid ISO duration %q: empty body", orig)
	}

	var total time.Duration
	inTime := false
	seenAny := false
	for s != "" {
		if s[0] == 'T' {
			if inTime {
				return 0, fmt.Errorf("invalid ISO duration %q: repeated T designator", orig)
			}
			inTime = true
			s = s[1:]
			continue
		}
		i := 0
		for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
			i++
		}
		if i == 0 || i == len(s) {
			return 0, fmt.Errorf("invalid ISO duration %q", orig)
		}
		number, unit := s[:i], s[i]
		s = s[i+1:]
		if inTime && unit == 'S' {
			// Seconds carry the fractional part and must survive a
			// render/parse cycle without drift, so they are decoded
			// digit-exact instead of through a float.
			span, err := parseSeconds(number)
			if err != nil {
				return 0, fmt.Errorf("invalid ISO duration %q: bad number %q", orig, number)
			}
			total += span
			seenAny = true
			continue
		}
		value, err := strconv.ParseFloat(number, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO duration %q: bad number %q", orig, number)
		}
		switch {
		case !inTime && unit == 'D':
			total += time.Duration(value * float64(24*time.Hour))
		case !inTime && (unit == 'Y' || unit == 'M' || unit == 'W'):
			return 0, fmt.Errorf("invalid ISO duration %q: calendar unit %q not supported", orig, string(unit))
		case inTime && unit == 'H':
			total += time.Duration(value * float64(time.Hour))
		case inTime && unit == 'M':
			total += time.Duration(value * float64(time.Minute))
		default:
			return 0, fmt.Errorf("invalid ISO duration %q: unexpected designator %q", orig, string(unit))
		}
		seenAny = true
	}
	if !seenAny {
		return 0, fmt.Errorf("invalid ISO duration %q: no components", orig)
	}
	return Duration(total), nil
}

// parseSeconds decodes an ISO seconds component, at most nine fraction
// digits, into an exact duration.
func parseSeconds(number string) (time.Duration, error) {
	intPart, frac, hasFrac := strings.Cut(number, ".")
	var secs int64
	if intPart != "" {
		var err error
		secs, err = strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			return 0, err
		}
	} else if !hasFrac {
		return 0, fmt.Errorf("empty seconds component")
	}
	var nanos int64
	if hasFrac {
		if frac == "" || len(frac) > 9 {
			return 0, fmt.Errorf("bad seconds fraction %q", frac)
		}
		padded := frac + strings.Repeat("0", 9-len(frac))
		var err error
		nanos, err = strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return 0, err
		}
	}
	return time.Duration(secs)*time.Second + time.Duration(nanos), nil
}

// ISO renders the duration in canonical ISO-8601 form. Zero components
// are omitted; the zero duration renders as PT0S.
func (d Duration) ISO() string {
	rest := time.Duration(d)
	if rest <= 0 {
		return "PT0S"
	}
	days := rest / (24 * time.Hour)
	rest -= days * 24 * time.Hour
	hours := rest / time.Hour
	rest -= hours * time.Hour
	minutes := rest / time.Minute
	rest -= minutes * time.Minute
	seconds := rest / time.Second
	nanos := rest - seconds*time.Second

	var b strings.Builder
	b.WriteByte('P')
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || minutes > 0 || seconds > 0 || nanos > 0 {
		b.WriteByte('T')
		if hours > 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes > 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
		if seconds > 0 || nanos > 0 {
			if nanos > 0 {
				frac := strings.TrimRight(fmt.Sprintf("%09d", nanos), "0")
				fmt.Fprintf(&b, "%d.%sS", seconds, frac)
			} else {
				fmt.Fprintf(&b, "%dS", seconds)
			}
		}
	}
	return b.String()
}

// Seconds returns the duration in whole and fractional seconds.
func (d Duration) Seconds() float64 {
	return time.Duration(d).Seconds()
}

func (Duration) BaseType() BaseType       { return BaseTypeDuration }
func (Duration) Cardinality() Cardinality { return CardinalitySingle }
func (Duration) IsNull() bool             { return false }
func (d Duration) String() string         { return d.ISO() }

func (d Duration) Equal(other Value) bool {
	w, ok := other.(Duration)
	return ok && d == w
}
