package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// overridePattern recognizes "in N <unit>" phrases in Portuguese and
// English. Group 1 is the quantity (digits, a spelled-out number, or
// "meia"/"half"), group 2 the unit word.
var overridePattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}])` +
	`(?:daqui\s+(?:a\s+)?|em\s+|dentro\s+de\s+|within\s+|in\s+)` +
	`(\d+(?:[.,]\d+)?|meia|half(?:\s+an?)?|[\p{L}]+)\s*` +
	`(minutos?|mins?|horas?|hrs?|h|dias?|minutes?|hours?|days?)(?:[^\p{L}]|$)`)

// Continuations that extend a matched phrase: "1h30", "2 horas e 15
// minutos", "uma hora e meia".
var (
	halfTail     = regexp.MustCompile(`(?i)^\s+e\s+mei[ao](?:[^\p{L}]|$)`)
	minutesTail  = regexp.MustCompile(`(?i)^\s*(?:e\s+)?(\d+|[\p{L}]{2,})\s*(?:minutos?|mins?|m)(?:[^\p{L}]|$)`)
	clockTail    = regexp.MustCompile(`^(\d{1,2})(?:[^\p{L}\d]|$)`)
	danglingTail = regexp.MustCompile(`(?i)^(?:\d|\s*e\s+(?:mei[ao]|\d))`)
)

var spelledNumbers = map[string]float64{
	"um": 1, "uma": 1, "dois": 2, "duas": 2, "três": 3, "tres": 3,
	"quatro": 4, "cinco": 5, "seis": 6, "sete": 7, "oito": 8, "nove": 9,
	"dez": 10, "onze": 11, "doze": 12, "quinze": 15, "vinte": 20,
	"trinta": 30, "quarenta": 40, "cinquenta": 50,
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"fifteen": 15, "twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
}

// DetectOverride scans text for a relative phrase such as
// "daqui 10 minutos", "em meia hora" or "in 2 hours" and returns the
// instant that phrase denotes relative to ref. The first phrase wins.
//
// Compound durations ("1h30", "uma hora e meia") are summed. A phrase
// with a continuation that cannot be read reports no override, so the
// caller falls back to the model's own time.
func DetectOverride(text string, ref time.Time) (time.Time, bool) {
	for _, idx := range overridePattern.FindAllStringSubmatchIndex(text, -1) {
		amount, ok := parseQuantity(text[idx[2]:idx[3]])
		if !ok {
			continue
		}
		unit, ok := ParseUnit(text[idx[4]:idx[5]])
		if !ok {
			continue
		}
		extra, ok := compoundTail(text[idx[5]:], unit)
		if !ok {
			return time.Time{}, false
		}
		return addUnits(ref, amount+extra, unit), true
	}
	return time.Time{}, false
}

// compoundTail reads what follows a matched unit and returns the extra
// amount in that unit. ok is false when a continuation is present but
// unreadable.
func compoundTail(tail string, unit Unit) (extra float64, ok bool) {
	if halfTail.MatchString(tail) {
		return 0.5, true
	}
	if unit == UnitHours {
		m := minutesTail.FindStringSubmatch(tail)
		if m == nil {
			m = clockTail.FindStringSubmatch(tail)
		}
		if m != nil {
			n, ok := parseQuantity(m[1])
			if !ok || n >= 60 || n != float64(int(n)) {
				return 0, false
			}
			return n / 60, true
		}
	}
	if danglingTail.MatchString(tail) {
		return 0, false
	}
	return 0, true
}

func parseQuantity(s string) (float64, bool) {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	switch {
	case s == "meia" || strings.HasPrefix(s, "half"):
		return 0.5, true
	}
	if n, ok := spelledNumbers[s]; ok {
		return n, true
	}
	n, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
