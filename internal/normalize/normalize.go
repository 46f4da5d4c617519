// Package normalize converts raw CSV cell text into the typed, nullable values
// stored by the loaders. Every function here is pure.
//
// Two numeric policies exist on purpose:
//   - Int is lenient: anything that is not a finite number becomes nil.
//   - StrictInt fails on absence or garbage; match scores use it because
//     they are never optional.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// MissingText is the stored form of a missing text cell.
const MissingText = "nan"

// DateLayout is the day-month-year layout of source dates. Zero padding is
// optional ("1-5-1990" and "01-05-1990" both parse).
const DateLayout = "2-1-2006"

// isoDate is the layout written to DATE columns.
const isoDate = "2006-01-02"

var (
	// ErrBadDate reports a non-missing date that does not match DateLayout.
	ErrBadDate = errors.New("malformed date")
	// ErrStrictInt reports a required integer that is missing or not numeric.
	ErrStrictInt = errors.New("required integer")
)

// ConversionError carries the offending value of a failed strict conversion.
type ConversionError struct {
	Value string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%v: cannot convert %q", e.Err, e.Value)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// naTokens mirrors the tokens the upstream CSV writer/reader treats as "no
// value".
var naTokens = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// IsMissing reports whether s is an absent cell.
func IsMissing(s string) bool {
	_, ok := naTokens[strings.TrimSpace(s)]
	return ok
}

// Date converts a day-month-year string to ISO form. Missing input yields
// (nil, nil); malformed input yields an error wrapping ErrBadDate.
func Date(s string) (*string, error) {
	if IsMissing(s) {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrBadDate, s, err)
	}
	iso := t.Format(isoDate)
	return &iso, nil
}

// Int coerces s to an integer, truncating toward zero ("3.7" -> 3). It never
// fails: missing, NaN, infinite, out-of-range and unparseable input all
// yield nil.
func Int(s string) *int {
	if IsMissing(s) {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return fromFloat(f)
}

// Coerce is Int for values that did not come from CSV text.
func Coerce(v any) *int {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return Int(t)
	case *string:
		if t == nil {
			return nil
		}
		return Int(*t)
	case int:
		return &t
	case int32:
		n := int(t)
		return &n
	case int64:
		n := int(t)
		return &n
	case float32:
		return fromFloat(float64(t))
	case float64:
		return fromFloat(t)
	default:
		return Int(fmt.Sprint(t))
	}
}

// StrictInt is the non-optional variant of Int. Absence and parse failure
// both return a *ConversionError wrapping ErrStrictInt.
func StrictInt(s string) (int, error) {
	if IsMissing(s) {
		return 0, &ConversionError{Value: s, Err: ErrStrictInt}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &ConversionError{Value: s, Err: ErrStrictInt}
	}
	n := fromFloat(f)
	if n == nil {
		return 0, &ConversionError{Value: s, Err: ErrStrictInt}
	}
	return *n, nil
}

// Text cleans a text cell: trims it, folds non-breaking spaces and applies
// NFC so composed and decomposed accents compare equal. Missing cells
// become MissingText.
func Text(s string) string {
	if IsMissing(s) {
		return MissingText
	}
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return norm.NFC.String(strings.TrimSpace(s))
}

func fromFloat(f float64) *int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f = math.Trunc(f)
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	n := int(f)
	return &n
}
