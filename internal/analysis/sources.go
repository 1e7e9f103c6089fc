package analysis

import "go.starlark.net/syntax"

// RequiredSources reports, for each of n sources, whether the code in f may
// read it. A source is required when it is indexed with a literal, or when
// the code uses the data binding in any other way (iteration, len, passing
// it to a library call, computed indexes), which requires every source.
// The result may over-select but never omits a source the code reads.
func RequiredSources(f *syntax.File, n int) []bool {
	u := analyzeUsage(f, n)
	required := make([]bool, n)
	for i := range required {
		required[i] = u.all || len(u.refs[i]) > 0
	}
	return required
}
