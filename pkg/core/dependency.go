package core

import "strings"

// Dependency is an allow-listed library symbol imported by generated code.
// It is bound into the execution context under Alias.
type Dependency struct {
	// Module is the full module string as written in the load statement.
	Module string
	// Symbol is the member loaded from the module.
	Symbol string
	// Alias is the name the symbol is bound to.
	Alias string
}

// Root returns the root module name of the dependency.
func (d Dependency) Root() string {
	return RootModule(d.Module)
}

// RootModule derives the root module name from a module string:
// everything up to the first ".", "/" or ":", with a trailing ".star" and
// leading label markers ("@", "//") ignored.
func RootModule(module string) string {
	module = strings.TrimSuffix(module, ".star")
	module = strings.TrimLeft(module, "@/")
	if i := strings.IndexAny(module, "./:"); i >= 0 {
		return module[:i]
	}
	return module
}
