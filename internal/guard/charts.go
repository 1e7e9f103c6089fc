package guard

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"go.starlark.net/syntax"
)

// ChartModule is the library generated code draws charts with.
const ChartModule = "chart"

// ChartPath returns the canonical path of the n-th (0-based) chart a prompt
// saves: dir/promptID.ext for the first, dir/promptID_n.ext after that.
func ChartPath(dir, promptID string, n int, ext string) string {
	name := promptID
	if n > 0 {
		name = fmt.Sprintf("%s_%d", promptID, n)
	}
	return filepath.ToSlash(filepath.Join(dir, name+ext))
}

// RewriteChartPaths replaces every string-literal path passed to chart.save
// with its canonical path under dir. The extension is kept when it is a
// supported chart format and defaults to .svg otherwise.
func RewriteChartPaths(src, dir, promptID string) (string, error) {
	f, err := Parse(src)
	if err != nil {
		return "", err
	}

	saves, modules := chartAliases(f)
	ed := newEditor(src)
	n := 0
	syntax.Walk(f, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || !isChartSave(call.Fn, saves, modules) {
			return true
		}
		lit := savePathArg(call)
		if lit == nil {
			return true
		}
		old, _ := lit.Value.(string)
		ed.replace(lit, strconv.Quote(ChartPath(dir, promptID, n, chartExt(old))))
		n++
		return true
	})
	return ed.apply(), nil
}

// chartAliases returns the names bound to chart.save and to the chart module
// itself by load statements.
func chartAliases(f *syntax.File) (saves, modules map[string]bool) {
	saves = map[string]bool{}
	modules = map[string]bool{ChartModule: true}
	for _, stmt := range f.Stmts {
		load, ok := stmt.(*syntax.LoadStmt)
		if !ok || strings.TrimSuffix(load.ModuleName(), ".star") != ChartModule {
			continue
		}
		for i, from := range load.From {
			switch from.Name {
			case "save":
				saves[load.To[i].Name] = true
			case ChartModule:
				modules[load.To[i].Name] = true
			}
		}
	}
	return saves, modules
}

func isChartSave(fn syntax.Expr, saves, modules map[string]bool) bool {
	switch fn := fn.(type) {
	case *syntax.Ident:
		return saves[fn.Name]
	case *syntax.DotExpr:
		x, ok := fn.X.(*syntax.Ident)
		return ok && modules[x.Name] && fn.Name.Name == "save"
	}
	return false
}

// savePathArg returns the string literal given as the path argument of a
// save call: the second positional argument or path=.
func savePathArg(call *syntax.CallExpr) *syntax.Literal {
	positional := 0
	for _, arg := range call.Args {
		var value syntax.Expr
		if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
			if id, ok := kw.X.(*syntax.Ident); ok && id.Name == "path" {
				value = kw.Y
			}
		} else {
			if positional == 1 {
				value = arg
			}
			positional++
		}
		if lit, ok := value.(*syntax.Literal); ok && lit.Token == syntax.STRING {
			return lit
		}
	}
	return nil
}

func chartExt(p string) string {
	switch ext := strings.ToLower(path.Ext(p)); ext {
	case ".json", ".svg":
		return ext
	}
	return ".svg"
}
