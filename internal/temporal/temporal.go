// Package temporal converts time specifications into absolute instants
// in a single fixed civil offset.
//
// Two resolution paths exist. The structured path takes a [Spec]
// produced by the model (a relative offset or absolute calendar
// components). The safety-net path, [DetectOverride], scans the raw
// user text for "in N minutes" style phrases and computes the instant
// directly from the reference time. When both are present the override
// wins; see [ResolveReminder].
package temporal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PastTolerance is how far before the reference instant a resolved
// time may fall and still be accepted.
const PastTolerance = 5 * time.Minute

// Default clock time for absolute specs that name no hour or minute.
const (
	DefaultHour   = 9
	DefaultMinute = 0
)

// Kind identifies the shape of a [Spec].
type Kind string

const (
	KindRelative Kind = "relative"
	KindAbsolute Kind = "absolute"
)

// Unit is a relative offset unit.
type Unit string

const (
	UnitMinutes Unit = "minutes"
	UnitHours   Unit = "hours"
	UnitDays    Unit = "days"
)

// Units lists the accepted relative units in schema order.
var Units = []string{string(UnitMinutes), string(UnitHours), string(UnitDays)}

// ParseUnit normalizes a unit name. Singular forms and a few
// abbreviations are accepted.
func ParseUnit(s string) (Unit, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minutes", "minute", "min", "mins", "m", "minutos", "minuto":
		return UnitMinutes, true
	case "hours", "hour", "h", "hr", "hrs", "horas", "hora":
		return UnitHours, true
	case "days", "day", "d", "dias", "dia":
		return UnitDays, true
	}
	return "", false
}

// Duration returns the length of one unit. Days are treated as civil
// days by [Spec] resolution (see addUnits), so this is only used for
// minutes and hours.
func (u Unit) Duration() time.Duration {
	switch u {
	case UnitMinutes:
		return time.Minute
	case UnitHours:
		return time.Hour
	case UnitDays:
		return 24 * time.Hour
	}
	return 0
}

// Spec is a time specification supplied by the model.
type Spec struct {
	Kind Kind `json:"kind"`

	// Relative fields.
	Amount float64 `json:"amount,omitempty"`
	Unit   Unit    `json:"unit,omitempty"`

	// Absolute fields. Nil means "inherit" (or default, for hour/minute).
	Year   *int `json:"year,omitempty"`
	Month  *int `json:"month,omitempty"` // 1-12
	Day    *int `json:"day,omitempty"`
	Hour   *int `json:"hour,omitempty"`
	Minute *int `json:"minute,omitempty"`
}

// Relative returns a relative spec.
func Relative(amount float64, unit Unit) Spec {
	return Spec{Kind: KindRelative, Amount: amount, Unit: unit}
}

// Int returns a pointer to v, for building absolute specs.
func Int(v int) *int { return &v }

// String renders the spec for logs.
func (s Spec) String() string {
	if s.Kind == KindRelative {
		return fmt.Sprintf("+%s %s", strconv.FormatFloat(s.Amount, 'f', -1, 64), s.Unit)
	}
	var parts []string
	add := func(name string, v *int) {
		if v != nil {
			parts = append(parts, fmt.Sprintf("%s=%d", name, *v))
		}
	}
	add("year", s.Year)
	add("month", s.Month)
	add("day", s.Day)
	add("hour", s.Hour)
	add("minute", s.Minute)
	return "absolute{" + strings.Join(parts, " ") + "}"
}

// ErrAmbiguousTime is the sentinel wrapped by every [AmbiguousTimeError].
var ErrAmbiguousTime = errors.New("ambiguous time")

// AmbiguousTimeError reports that no confident future instant could be
// produced. Reason is phrased for the model to relay to the user.
type AmbiguousTimeError struct {
	Reason string
	At     time.Time // zero when nothing was resolved
}

// Error implements the error interface.
func (e *AmbiguousTimeError) Error() string {
	return "ambiguous time: " + e.Reason
}

// Unwrap lets errors.Is match [ErrAmbiguousTime].
func (e *AmbiguousTimeError) Unwrap() error { return ErrAmbiguousTime }

// Resolve converts spec into an absolute instant using ref as the
// reference. The result is expressed in loc. Resolve does not apply the
// past-tolerance check; use [Validate] or [ResolveReminder] for that.
func Resolve(spec Spec, ref time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	ref = ref.In(loc)

	switch spec.Kind {
	case KindRelative:
		if spec.Amount <= 0 {
			return time.Time{}, &AmbiguousTimeError{Reason: "relative amount must be greater than zero"}
		}
		unit, ok := ParseUnit(string(spec.Unit))
		if !ok {
			return time.Time{}, &AmbiguousTimeError{Reason: fmt.Sprintf("unknown unit %q (use minutes, hours or days)", spec.Unit)}
		}
		return addUnits(ref, spec.Amount, unit), nil

	case KindAbsolute:
		return resolveAbsolute(spec, ref, loc)

	default:
		return time.Time{}, &AmbiguousTimeError{Reason: fmt.Sprintf("unknown time kind %q", spec.Kind)}
	}
}

// addUnits adds amount units to t. Whole days are added on the civil
// calendar so a fixed offset and a DST-free zone agree; fractional
// remainders fall back to duration arithmetic.
func addUnits(t time.Time, amount float64, unit Unit) time.Time {
	if unit == UnitDays {
		whole := int(amount)
		t = t.AddDate(0, 0, whole)
		amount -= float64(whole)
		if amount == 0 {
			return t
		}
	}
	return t.Add(time.Duration(amount * float64(unit.Duration())))
}

func resolveAbsolute(spec Spec, ref time.Time, loc *time.Location) (time.Time, error) {
	if spec.Year == nil && spec.Month == nil && spec.Day == nil && spec.Hour == nil && spec.Minute == nil {
		return time.Time{}, &AmbiguousTimeError{Reason: "no date or time components were given"}
	}

	year, month, day := ref.Date()
	hour, minute := ref.Hour(), ref.Minute()

	// Components are merged into locals first and handed to time.Date
	// once, in year, month, day, hour, minute order.
	if spec.Year != nil {
		year = *spec.Year
	}
	if spec.Month != nil {
		if *spec.Month < 1 || *spec.Month > 12 {
			return time.Time{}, &AmbiguousTimeError{Reason: fmt.Sprintf("month %d is out of range", *spec.Month)}
		}
		month = time.Month(*spec.Month)
	}
	if spec.Day != nil {
		if *spec.Day < 1 || *spec.Day > daysIn(year, month) {
			return time.Time{}, &AmbiguousTimeError{Reason: fmt.Sprintf("day %d does not exist in %s %d", *spec.Day, month, year)}
		}
		day = *spec.Day
	}

	switch {
	case spec.Hour == nil && spec.Minute == nil:
		hour, minute = DefaultHour, DefaultMinute
	case spec.Hour != nil:
		hour = *spec.Hour
		minute = DefaultMinute
		if spec.Minute != nil {
			minute = *spec.Minute
		}
	default:
		minute = *spec.Minute
	}
	if hour < 0 || hour > 23 {
		return time.Time{}, &AmbiguousTimeError{Reason: fmt.Sprintf("hour %d is out of range", hour)}
	}
	if minute < 0 || minute > 59 {
		return time.Time{}, &AmbiguousTimeError{Reason: fmt.Sprintf("minute %d is out of range", minute)}
	}

	return time.Date(year, month, day, hour, minute, 0, 0, loc), nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Validate rejects instants earlier than ref minus [PastTolerance].
func Validate(at, ref time.Time) error {
	if at.Before(ref.Add(-PastTolerance)) {
		return &AmbiguousTimeError{
			Reason: fmt.Sprintf("the resolved time %s is in the past", at.Format("2006-01-02 15:04")),
			At:     at,
		}
	}
	return nil
}

// Source names which path produced a reminder time.
type Source string

const (
	SourceOverride Source = "override"
	SourceSpec     Source = "spec"
)

// Resolution is the outcome of [ResolveReminder].
type Resolution struct {
	At     time.Time
	Source Source
}

// ResolveReminder picks exactly one resolution path in priority order
// override > spec > error, then validates the result against ref.
func ResolveReminder(override *time.Time, spec *Spec, ref time.Time, loc *time.Location) (Resolution, error) {
	if loc == nil {
		loc = time.UTC
	}

	var res Resolution
	switch {
	case override != nil:
		res = Resolution{At: override.In(loc), Source: SourceOverride}
	case spec != nil:
		at, err := Resolve(*spec, ref, loc)
		if err != nil {
			return Resolution{}, err
		}
		res = Resolution{At: at, Source: SourceSpec}
	default:
		return Resolution{}, &AmbiguousTimeError{Reason: "no time was given for the reminder"}
	}

	if err := Validate(res.At, ref); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// ParseOffset parses a "+HH:MM" / "-HH:MM" offset into a fixed zone.
// An empty string yields UTC.
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "Z" || strings.EqualFold(s, "utc") {
		return time.UTC, nil
	}
	t, err := time.Parse("-07:00", s)
	if err != nil {
		return nil, fmt.Errorf("invalid utc offset %q (want e.g. -03:00): %w", s, err)
	}
	_, secs := t.Zone()
	return time.FixedZone("UTC"+s, secs), nil
}
