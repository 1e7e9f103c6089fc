package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/frame"
)

// Output types a Request may ask for.
const (
	OutputNumber    = "number"
	OutputString    = "string"
	OutputDataframe = "dataframe"
	OutputPlot      = "plot"
)

// outputChecks reports, per output type, why a value does not have it.
var outputChecks = map[string]func(v any) string{
	OutputNumber: func(v any) string {
		switch v.(type) {
		case int64, float64:
			return ""
		}
		return fmt.Sprintf("value is %s, not a number", describeValue(v))
	},
	OutputString: func(v any) string {
		if _, ok := v.(string); ok {
			return ""
		}
		return fmt.Sprintf("value is %s, not a string", describeValue(v))
	},
	OutputDataframe: func(v any) string {
		if _, ok := v.(*frame.Table); ok {
			return ""
		}
		return fmt.Sprintf("value is %s, not a dataframe", describeValue(v))
	},
	OutputPlot: func(v any) string {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return ""
		}
		return fmt.Sprintf("value is %s, not a chart path", describeValue(v))
	},
}

// OutputTypes returns the output types a Request may ask for.
func OutputTypes() []string {
	out := make([]string, 0, len(outputChecks))
	for t := range outputChecks {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// checkOutputType fails unless v is a {"type": want, "value": ...} result
// whose value has type want. An empty want accepts anything.
func checkOutputType(want string, v any) error {
	if want == "" {
		return nil
	}
	res, ok := v.(map[string]any)
	if !ok {
		return &core.InvalidOutputTypeError{Want: want, Reason: fmt.Sprintf("result is %s, not a {\"type\", \"value\"} dict", describeValue(v))}
	}
	got, ok := res["type"].(string)
	if !ok {
		return &core.InvalidOutputTypeError{Want: want, Reason: "result has no \"type\""}
	}
	if !strings.EqualFold(got, want) {
		return &core.InvalidOutputTypeError{Want: want, Got: got}
	}
	value, ok := res["value"]
	if !ok {
		return &core.InvalidOutputTypeError{Want: want, Reason: "result has no \"value\""}
	}
	if reason := outputChecks[want](value); reason != "" {
		return &core.InvalidOutputTypeError{Want: want, Got: got, Reason: reason}
	}
	return nil
}

func describeValue(v any) string {
	switch v.(type) {
	case nil:
		return "None"
	case *frame.Table:
		return "a dataframe"
	case map[string]any:
		return "a dict"
	case []any:
		return "a list"
	}
	return fmt.Sprintf("%T", v)
}
