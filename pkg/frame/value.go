package frame

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Normalize converts a Go value into one of the supported cell types.
func Normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, int64, float64, string, time.Time:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return float64(val), nil
		}
		return int64(val), nil
	case float32:
		return float64(val), nil
	case []byte:
		return string(val), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return *val, nil
	case fmt.Stringer:
		return val.String(), nil
	default:
		return nil, fmt.Errorf("unsupported cell type %T", v)
	}
}

// Equal reports whether two cells are equal. Integers and floats compare by value.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := compare(a, b)
	return ok && c == 0
}

// Compare orders two cells. Nil sorts before everything, numbers compare by
// value, and values of unrelated types are ordered by type name.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, ok := compare(a, b); ok {
		return c
	}
	ta, tb := fmt.Sprintf("%T", a), fmt.Sprintf("%T", b)
	switch {
	case ta < tb:
		return -1
	case ta > tb:
		return 1
	}
	return 0
}

// compare orders comparable non-nil cells; ok is false for incomparable types.
func compare(a, b any) (int, bool) {
	if fa, aNum := asFloat(a); aNum {
		if fb, bNum := asFloat(b); bNum {
			ia, aInt := a.(int64)
			ib, bInt := b.(int64)
			if aInt && bInt {
				return cmp(ia, ib), true
			}
			return cmp(fa, fb), true
		}
		return 0, false
	}
	switch va := a.(type) {
	case string:
		if vb, ok := b.(string); ok {
			return cmp(va, vb), true
		}
	case bool:
		if vb, ok := b.(bool); ok {
			return cmp(boolInt(va), boolInt(vb)), true
		}
	case time.Time:
		if vb, ok := b.(time.Time); ok {
			return va.Compare(vb), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	}
	return 0, false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cmp[T int | int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Key returns a string that is identical for equal cells. Used for grouping,
// joining and distinct counts.
func Key(v any) string {
	switch val := v.(type) {
	case nil:
		return "n:"
	case int64:
		return "i:" + strconv.FormatInt(val, 10)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e18 {
			return "i:" + strconv.FormatInt(int64(val), 10)
		}
		return "f:" + strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return "s:" + val
	case bool:
		return "b:" + strconv.FormatBool(val)
	case time.Time:
		return "t:" + val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// FormatCell renders a cell for display.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}
