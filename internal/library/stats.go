package library

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StatsModuleName is the library root of the statistics module.
const StatsModuleName = "stats"

// StatsModule provides descriptive statistics over iterables of numbers.
// None values are skipped, so a table column can be passed directly.
var StatsModule = &starlarkstruct.Module{
	Name: StatsModuleName,
	Members: starlark.StringDict{
		"sum":      starlark.NewBuiltin("sum", statsReduce(sum)),
		"mean":     starlark.NewBuiltin("mean", statsReduce(mean)),
		"median":   starlark.NewBuiltin("median", statsReduce(median)),
		"variance": starlark.NewBuiltin("variance", statsReduce(variance)),
		"stdev":    starlark.NewBuiltin("stdev", statsReduce(stdev)),
		"quantile": starlark.NewBuiltin("quantile", quantileBuiltin),
	},
}

func statsReduce(fn func([]float64) (float64, error)) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var values starlark.Iterable
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &values); err != nil {
			return nil, err
		}
		xs, err := floats(values)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		v, err := fn(xs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return starlark.Float(v), nil
	}
}

func quantileBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var values starlark.Iterable
	var q float64
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "values", &values, "q", &q); err != nil {
		return nil, err
	}
	if q < 0 || q > 1 {
		return nil, fmt.Errorf("%s: q must be between 0 and 1, got %g", b.Name(), q)
	}
	xs, err := floats(values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	v, err := quantile(xs, q)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.Float(v), nil
}

func floats(values starlark.Iterable) ([]float64, error) {
	iter := values.Iterate()
	defer iter.Done()
	var out []float64
	var x starlark.Value
	for iter.Next(&x) {
		if x == starlark.None {
			continue
		}
		f, ok := starlark.AsFloat(x)
		if !ok {
			return nil, fmt.Errorf("want numbers, got %s", x.Type())
		}
		out = append(out, f)
	}
	return out, nil
}

var errNoValues = errors.New("no values")

func sum(xs []float64) (float64, error) {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total, nil
}

func mean(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, errNoValues
	}
	total, _ := sum(xs)
	return total / float64(len(xs)), nil
}

func median(xs []float64) (float64, error) {
	return quantile(xs, 0.5)
}

// variance is the sample variance.
func variance(xs []float64) (float64, error) {
	if len(xs) < 2 {
		return 0, fmt.Errorf("need at least two values, got %d", len(xs))
	}
	m, _ := mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return ss / float64(len(xs)-1), nil
}

func stdev(xs []float64) (float64, error) {
	v, err := variance(xs)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(v), nil
}

// quantile interpolates linearly between closest ranks.
func quantile(xs []float64, q float64) (float64, error) {
	if len(xs) == 0 {
		return 0, errNoValues
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac, nil
}
