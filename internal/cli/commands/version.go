package commands

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// starlarkModule is the interpreter module reported by the version command.
const starlarkModule = "go.starlark.net"

// BuildInfo identifies a leapask build.
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// NewVersionCommand creates the version command.
func NewVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display leapask version and build information: the commit and date it was
built from, the Go toolchain and the Starlark interpreter version.`,
		Run: func(cmd *cobra.Command, _ []string) {
			writeVersion(cmd.OutOrStdout(), info, readModules())
		},
	}
}

// readModules returns the Go version and dependency versions of the binary.
func readModules() map[string]string {
	mods := map[string]string{"go": runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return mods
	}
	mods["go"] = bi.GoVersion
	for _, dep := range bi.Deps {
		v := dep.Version
		if dep.Replace != nil {
			v = dep.Replace.Version
		}
		mods[dep.Path] = v
	}
	return mods
}

func writeVersion(w io.Writer, info BuildInfo, mods map[string]string) {
	_, _ = fmt.Fprintf(w, "leapask v%s\n", info.Version)
	_, _ = fmt.Fprintln(w, "Sandboxed execution of generated Starlark analysis code")
	_, _ = fmt.Fprintf(w, "  commit:   %s\n", info.GitCommit)
	_, _ = fmt.Fprintf(w, "  built:    %s\n", info.BuildDate)
	_, _ = fmt.Fprintf(w, "  go:       %s\n", mods["go"])
	starlark := mods[starlarkModule]
	if starlark == "" {
		starlark = "unknown"
	}
	_, _ = fmt.Fprintf(w, "  starlark: %s\n", starlark)
}
