package guard

import (
	"github.com/leapstack-labs/leapask/pkg/core"
	"go.starlark.net/syntax"
)

// resolveLoad checks one load statement against the allow-list. It returns the
// dependency records it contributes and, when the statement is bound by the
// host instead of the loader, the reason it is removed.
func (s *Sanitizer) resolveLoad(load *syntax.LoadStmt) ([]core.Dependency, string, error) {
	module := load.ModuleName()
	root := core.RootModule(module)

	switch {
	case root == core.FrameModule:
		return nil, "", nil
	case s.Allowed(root):
		deps := make([]core.Dependency, len(load.From))
		for i := range load.From {
			deps[i] = core.Dependency{Module: module, Symbol: load.From[i].Name, Alias: load.To[i].Name}
		}
		return deps, ReasonResolvedLoad, nil
	case core.IsSafeBuiltin(root):
		return nil, ReasonBuiltinImport, nil
	}
	return nil, "", &core.DisallowedImportError{Module: root}
}
