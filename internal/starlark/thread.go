package starlark

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapask/pkg/core"
	"github.com/leapstack-labs/leapask/pkg/frame"
	"go.starlark.net/starlark"
)

// newThread creates the thread one execution runs on. print goes to logger
// and load serves only the frame module. The thread is cancelled when ctx
// is done; call the returned stop function once execution ends.
func newThread(ctx context.Context, name string, logger *slog.Logger) (*starlark.Thread, func() bool) {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Info("generated code output", slog.String("msg", msg))
		},
		Load: loadFrame,
	}
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(ctx.Err().Error())
	})
	return thread, stop
}

// loadFrame serves load statements. Anything other than the frame module
// was removed or rejected by the sanitizer, so it is an error here.
func loadFrame(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	if core.RootModule(module) != core.FrameModule {
		return nil, fmt.Errorf("cannot load %s: only %s is loadable", module, core.FrameModule)
	}
	members := make(starlark.StringDict, len(frame.Module.Members)+1)
	for k, v := range frame.Module.Members {
		members[k] = v
	}
	members[core.FrameModule] = frame.Module
	return members, nil
}
