package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/syntax"
)

func parseFile(t *testing.T, src string) *syntax.File {
	t.Helper()
	f, err := fileOptions.Parse("test.star", src, 0)
	require.NoError(t, err)
	return f
}

func TestRequiredSources(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []bool
	}{
		{
			name: "literal index",
			src:  "def analyze_data(dfs):\n    return dfs[0].count()\nresult = analyze_data(dfs)\n",
			want: []bool{true, false, false},
		},
		{name: "negative index", src: "x = dfs[-1]\n", want: []bool{false, false, true}},
		{name: "two indexes", src: "x = dfs[0]\ny = dfs[2]\n", want: []bool{true, false, true}},
		{name: "iteration", src: "for df in dfs:\n    pass\n", want: []bool{true, true, true}},
		{name: "len", src: "n = len(dfs)\n", want: []bool{true, true, true}},
		{name: "library call", src: "t = frame.concat(dfs)\n", want: []bool{true, true, true}},
		{name: "comprehension", src: "c = [d.count() for d in dfs]\n", want: []bool{true, true, true}},
		{name: "computed index", src: "i = 1\nx = dfs[i]\n", want: []bool{true, true, true}},
		{name: "slice", src: "x = dfs[0:2]\n", want: []bool{true, true, true}},
		{
			name: "alias through local function",
			src: `def helper(data):
    return data[2]
def analyze_data(dfs):
    return helper(dfs)
result = analyze_data(dfs)
`,
			want: []bool{false, false, true},
		},
		{
			name: "alias passed on to a library",
			src: `def helper(data):
    return len(data)
x = helper(dfs)
`,
			want: []bool{true, true, true},
		},
		{name: "unused", src: "result = 1\n", want: []bool{false, false, false}},
		{name: "out of range", src: "x = dfs[7]\n", want: []bool{false, false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequiredSources(parseFile(t, tt.src), 3))
		})
	}
}

func TestRequiredSources_ThreeSourceFixture(t *testing.T) {
	src := `def analyze_data(dfs):
    orders = dfs[0]
    return orders.count()
result = analyze_data(dfs)
`
	required := RequiredSources(parseFile(t, src), 3)
	assert.Equal(t, []bool{true, false, false}, required)
}
