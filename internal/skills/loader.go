package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

var fileOptions = &syntax.FileOptions{Set: true, TopLevelControl: true, GlobalReassign: true}

// LoadDir loads every public top-level function of the .star files in dir
// as a skill. Signatures and docstrings come from the source; the functions
// come from executing it with predeclared in scope. A missing directory
// yields no skills.
func LoadDir(dir string, predeclared starlark.StringDict) ([]*Skill, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access skills directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("skills path is not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan skills directory: %w", err)
	}
	sort.Strings(files)

	var out []*Skill
	for _, file := range files {
		skills, err := loadFile(file, predeclared)
		if err != nil {
			return nil, err
		}
		out = append(out, skills...)
	}
	return out, nil
}

func loadFile(path string, predeclared starlark.StringDict) ([]*Skill, error) {
	content, err := os.ReadFile(path) //nolint:gosec // path comes from a glob inside the skills directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	f, err := fileOptions.Parse(path, content, 0)
	if err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	thread := &starlark.Thread{Name: "skills:" + filepath.Base(path), Print: func(*starlark.Thread, string) {}}
	globals, err := starlark.ExecFileOptions(fileOptions, thread, path, content, predeclared)
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("starlark execution error: %v", err)}
	}

	var out []*Skill
	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok || strings.HasPrefix(def.Name.Name, "_") {
			continue
		}
		fn, ok := globals[def.Name.Name].(starlark.Callable)
		if !ok {
			// rebound after the def
			continue
		}
		out = append(out, &Skill{
			Name:      def.Name.Name,
			Args:      paramStrings(def.Params),
			Docstring: docstring(def.Body),
			Fn:        fn,
		})
	}
	return out, nil
}

func paramStrings(params []syntax.Expr) []string {
	args := make([]string, 0, len(params))
	for _, param := range params {
		switch p := param.(type) {
		case *syntax.Ident:
			args = append(args, p.Name)
		case *syntax.BinaryExpr:
			if id, ok := p.X.(*syntax.Ident); ok && p.Op == syntax.EQ {
				args = append(args, id.Name+"="+exprString(p.Y))
			}
		case *syntax.UnaryExpr:
			prefix := "*"
			if p.Op == syntax.STARSTAR {
				prefix = "**"
			}
			if id, ok := p.X.(*syntax.Ident); ok {
				args = append(args, prefix+id.Name)
			} else {
				args = append(args, prefix)
			}
		}
	}
	return args
}

func docstring(body []syntax.Stmt) string {
	if len(body) == 0 {
		return ""
	}
	expr, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return ""
	}
	lit, ok := expr.X.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return ""
	}
	s, _ := lit.Value.(string)
	return strings.TrimSpace(s)
}

func exprString(expr syntax.Expr) string {
	switch e := expr.(type) {
	case *syntax.Literal:
		return e.Raw
	case *syntax.Ident:
		return e.Name
	case *syntax.ListExpr:
		return "[]"
	case *syntax.DictExpr:
		return "{}"
	case *syntax.TupleExpr:
		return "()"
	case *syntax.UnaryExpr:
		if e.Op == syntax.MINUS {
			return "-" + exprString(e.X)
		}
		return exprString(e.X)
	}
	return "..."
}

// LoadError reports a skills file that could not be loaded.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("skills/%s: %s", filepath.Base(e.File), e.Message)
}
