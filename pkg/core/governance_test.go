//go:build governance

package core_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

const modulePath = "github.com/leapstack-labs/leapask"

// TestGovernance_PublicPackagesAvoidInternal verifies that nothing under pkg/
// imports the module's internal packages, so pkg/ stays usable on its own.
func TestGovernance_PublicPackagesAvoidInternal(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, modulePath+"/pkg/...")
	require.NoError(t, err)
	require.NotEmpty(t, pkgs)

	for _, p := range pkgs {
		for path := range p.Imports {
			if strings.HasPrefix(path, modulePath+"/internal/") {
				t.Errorf("LAYERING VIOLATION: '%s' imports '%s'.\n"+
					"   Fix: move the shared code under pkg/.",
					strings.TrimPrefix(p.PkgPath, modulePath+"/"), strings.TrimPrefix(path, modulePath+"/"))
			}
		}
	}
}

// TestGovernance_AdaptersThroughRegistry verifies that only the binary
// registers concrete adapters; everything else opens connections through
// pkg/adapter.
func TestGovernance_AdaptersThroughRegistry(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, modulePath+"/...")
	require.NoError(t, err)

	for _, p := range pkgs {
		if p.PkgPath == modulePath+"/cmd/leapask" || strings.HasPrefix(p.PkgPath, modulePath+"/pkg/adapters/") {
			continue
		}
		for path := range p.Imports {
			if strings.HasPrefix(path, modulePath+"/pkg/adapters/") {
				t.Errorf("LAYERING VIOLATION: '%s' imports adapter '%s' directly.\n"+
					"   Fix: open it with adapter.Open.",
					strings.TrimPrefix(p.PkgPath, modulePath+"/"), strings.TrimPrefix(path, modulePath+"/"))
			}
		}
	}
}
