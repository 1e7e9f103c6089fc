package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func builtinSkill(name string) *Skill {
	return &Skill{
		Name: name,
		Args: []string{"table"},
		Fn: starlark.NewBuiltin(name, func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return starlark.None, nil
		}),
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(builtinSkill("top_customers"), builtinSkill("churn_rate")))
	assert.Equal(t, []string{"churn_rate", "top_customers"}, r.Names())

	err := r.Add(builtinSkill("churn_rate"))
	assert.ErrorContains(t, err, "already registered")

	err = r.Add(&Skill{Name: "empty"})
	assert.ErrorContains(t, err, "no function")

	s, ok := r.Get("top_customers")
	require.True(t, ok)
	assert.Equal(t, "top_customers(table)", s.Signature())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_UsedSet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(builtinSkill("a"), builtinSkill("b")))

	assert.Empty(t, r.Used())
	r.MarkUsed("b")
	r.MarkUsed("a")
	r.MarkUsed("b")
	assert.Equal(t, []string{"a", "b"}, r.Used())

	r.ResetUsed()
	assert.Empty(t, r.Used())
}

func TestRegistry_NilIsEmpty(t *testing.T) {
	var r *Registry
	_, ok := r.Get("a")
	assert.False(t, ok)
	assert.Nil(t, r.Used())
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(builtinSkill("old")))
	r.MarkUsed("old")

	require.NoError(t, r.Replace([]*Skill{builtinSkill("new")}))
	assert.Equal(t, []string{"new"}, r.Names())
	assert.Empty(t, r.Used())

	// a failed replace keeps the current skills
	err := r.Replace([]*Skill{builtinSkill("x"), builtinSkill("x")})
	assert.Error(t, err)
	assert.Equal(t, []string{"new"}, r.Names())
}

func TestRegistry_Describe(t *testing.T) {
	r := NewRegistry()
	s := builtinSkill("top_customers")
	s.Args = []string{"table", "n=5"}
	s.Docstring = "Returns the n customers with the highest total.\nTies keep input order."
	require.NoError(t, r.Add(s, builtinSkill("churn_rate")))

	want := "def churn_rate(table):\n\n" +
		"def top_customers(table, n=5):\n" +
		"    Returns the n customers with the highest total.\n" +
		"    Ties keep input order."
	assert.Equal(t, want, r.Describe())
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	src := `
def top_customers(table, n=5, *rest, **opts):
    """Returns the n best customers."""
    return table.head(n)

def _helper():
    return 1

def shadowed():
    return 1

shadowed = 2

LIMIT = 10
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.star"), []byte(src), 0o600))

	skills, err := LoadDir(dir, nil)
	require.NoError(t, err)
	require.Len(t, skills, 1)

	s := skills[0]
	assert.Equal(t, "top_customers", s.Name)
	assert.Equal(t, []string{"table", "n=5", "*rest", "**opts"}, s.Args)
	assert.Equal(t, "Returns the n best customers.", s.Docstring)
	assert.Equal(t, "top_customers", s.Fn.Name())
}

func TestLoadDir_Errors(t *testing.T) {
	skills, err := LoadDir(filepath.Join(t.TempDir(), "missing"), nil)
	require.NoError(t, err)
	assert.Empty(t, skills)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.star"), []byte("def f(:\n"), 0o600))
	_, err = LoadDir(dir, nil)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Error(), "skills/bad.star")
}
