package attr

import (
	"fmt"
	"math"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/catawampus/cwmpd/tr/fault"
	"golang.org/x/exp/constraints"
)

var macPattern = regexp.MustCompile(`(?i)^(([0-9A-F]{2}-){5}|([0-9A-F]{2}:){5})[0-9A-F]{2}$`)

func invalid(format string, v ...any) error {
	return fault.Errorf(fault.ErrInvalidValue, format, v...)
}

func wrongType(v any, want string) error {
	return fault.Errorf(fault.ErrInvalidType, "%T cannot be used as %s", v, want)
}

// toInt64 converts a Go integer, failing when it does not fit in int64.
func toInt64[T constraints.Integer](x T) (int64, error) {
	if x > 0 && uint64(x) > math.MaxInt64 {
		return 0, invalid("%d is out of range", x)
	}
	return int64(x), nil
}

// toUint64 converts a Go integer, failing when it is negative.
func toUint64[T constraints.Integer](x T) (uint64, error) {
	if x < 0 {
		return 0, invalid("%d must be >= 0", x)
	}
	return uint64(x), nil
}

// truncate drops the fraction of f, failing unless the result lies in
// [lo, hi).
func truncate[T constraints.Integer](f float64, lo, hi float64) (T, error) {
	if math.IsNaN(f) || f < lo || f >= hi {
		return 0, invalid("%v is out of range", f)
	}
	return T(f), nil
}

// intValue converts any Go numeric value to int64. ok is false for other types.
func intValue(v any) (i int64, ok bool, err error) {
	switch x := v.(type) {
	case int:
		i, err = toInt64(x)
	case int8:
		i, err = toInt64(x)
	case int16:
		i, err = toInt64(x)
	case int32:
		i, err = toInt64(x)
	case int64:
		i = x
	case uint:
		i, err = toInt64(x)
	case uint8:
		i, err = toInt64(x)
	case uint16:
		i, err = toInt64(x)
	case uint32:
		i, err = toInt64(x)
	case uint64:
		i, err = toInt64(x)
	case float32:
		i, err = truncate[int64](float64(x), -0x1p63, 0x1p63)
	case float64:
		i, err = truncate[int64](x, -0x1p63, 0x1p63)
	default:
		return 0, false, nil
	}
	return i, true, err
}

// uintValue converts any Go numeric value to uint64. ok is false for other types.
func uintValue(v any) (u uint64, ok bool, err error) {
	switch x := v.(type) {
	case int:
		u, err = toUint64(x)
	case int8:
		u, err = toUint64(x)
	case int16:
		u, err = toUint64(x)
	case int32:
		u, err = toUint64(x)
	case int64:
		u, err = toUint64(x)
	case uint:
		u = uint64(x)
	case uint8:
		u = uint64(x)
	case uint16:
		u = uint64(x)
	case uint32:
		u = uint64(x)
	case uint64:
		u = x
	case float32:
		u, err = truncate[uint64](float64(x), 0, 0x1p64)
	case float64:
		u, err = truncate[uint64](x, 0, 0x1p64)
	default:
		return 0, false, nil
	}
	return u, true, err
}

// floatValue converts any Go numeric value to float64. ok is false for
// other types.
func floatValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	if i, ok, err := intValue(v); ok && err == nil {
		return float64(i), true
	}
	if u, ok, err := uintValue(v); ok && err == nil {
		return float64(u), true
	}
	return 0, false
}

func checkBool(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1":
			return true, nil
		case "false", "0", "":
			return false, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, invalid("%q is not a valid boolean", x)
		}
		return f != 0, nil
	}
	if f, ok := floatValue(v); ok {
		return f != 0, nil
	}
	return nil, invalid("%T is not a valid boolean", v)
}

func checkInt(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, wrongType(v, "integer")
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, invalid("%q is not an integer", x)
		}
		return i, nil
	}
	i, ok, err := intValue(v)
	if !ok {
		return nil, wrongType(v, "integer")
	}
	if err != nil {
		return nil, err
	}
	return i, nil
}

func checkUnsigned(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, wrongType(v, "unsigned integer")
	case bool:
		if x {
			return uint64(1), nil
		}
		return uint64(0), nil
	case string:
		s := strings.TrimSpace(x)
		if strings.HasPrefix(s, "-") {
			if _, err := strconv.ParseInt(s, 10, 64); err == nil {
				return nil, invalid("%q must be >= 0", x)
			}
		}
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, invalid("%q is not an unsigned integer", x)
		}
		return u, nil
	}
	u, ok, err := uintValue(v)
	if !ok {
		return nil, wrongType(v, "unsigned integer")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func checkFloat(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, wrongType(v, "float")
	case bool:
		if x {
			return 1.0, nil
		}
		return 0.0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, invalid("%q is not a number", x)
		}
		return f, nil
	}
	if f, ok := floatValue(v); ok {
		return f, nil
	}
	return nil, wrongType(v, "float")
}

func checkString(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if utf8.ValidString(x) {
			return x, nil
		}
		return strings.ToValidUTF8(x, "�"), nil
	case []byte:
		return strings.ToValidUTF8(string(x), "�"), nil
	case time.Time:
		return FormatDate(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return fmt.Sprint(v), nil
}

func checkDate(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if x.IsZero() {
			return nil, nil
		}
		return x.UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epoch(f), nil
		}
		t, err := ParseDate(s)
		if err != nil {
			return nil, invalid("%q is not a date", x)
		}
		if t.IsZero() {
			return nil, nil
		}
		return t, nil
	}
	if f, ok := floatValue(v); ok {
		return epoch(f), nil
	}
	return nil, wrongType(v, "date")
}

func epoch(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// emptyOr returns the string form of v, reporting if it is unset.
func emptyOr(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		s := strings.TrimSpace(x)
		return s, s == ""
	}
	return fmt.Sprint(v), false
}

func checkMac(v any) (any, error) {
	s, empty := emptyOr(v)
	if empty {
		return nil, nil
	}
	if !macPattern.MatchString(s) {
		return nil, invalid("%q is not a MAC address", s)
	}
	return s, nil
}

func checkIP(v any, six bool) (any, error) {
	s, empty := emptyOr(v)
	if empty {
		return nil, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil || addr.Zone() != "" || addr.Is6() != six {
		return nil, invalid("%q is not an %s address", s, map[bool]string{false: "IPv4", true: "IPv6"}[six])
	}
	return s, nil
}

// Bool is true for "true"/"1", false for "false"/"0"/"", any number is
// true when non-zero.
func Bool(init any) *Attr { return newAttr(init, checkBool) }

// Int is a signed 64-bit integer.
func Int(init any) *Attr { return newAttr(init, checkInt) }

// Unsigned is an unsigned 64-bit integer; negative inputs are rejected.
func Unsigned(init any) *Attr { return newAttr(init, checkUnsigned) }

func Float(init any) *Attr { return newAttr(init, checkFloat) }

// String is a UTF-8 string or unset. Other values are formatted.
func String(init any) *Attr { return newAttr(init, checkString) }

// Date is a UTC time or unset. It accepts epoch seconds or an ISO-8601 string.
func Date(init any) *Attr { return newAttr(init, checkDate) }

// MacAddr is a colon or dash separated MAC address, or unset.
func MacAddr(init any) *Attr { return newAttr(init, checkMac) }

func IP4Addr(init any) *Attr {
	return newAttr(init, func(v any) (any, error) { return checkIP(v, false) })
}

func IP6Addr(init any) *Attr {
	return newAttr(init, func(v any) (any, error) { return checkIP(v, true) })
}

// Enum accepts only the listed values.
func Enum(values []any, init any) *Attr {
	return newAttr(init, func(v any) (any, error) {
		for _, allowed := range values {
			if Equal(allowed, v) {
				return v, nil
			}
		}
		return nil, invalid("%v invalid; valid values are %v", v, values)
	})
}

// StringEnum is Enum over string values.
func StringEnum(values []string, init any) *Attr {
	vals := make([]any, len(values))
	for i, s := range values {
		vals[i] = s
	}
	return Enum(vals, init)
}
