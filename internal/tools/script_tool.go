package tools

import (
	"context"

	"github.com/loomhq/loom/internal/interp"
)

func init() {
	Default.MustRegister(&Tool{
		Name:        "execute_python_script",
		Description: "Evaluate a script string in an isolated interpreter context with captured stdout.",
		Decode:      decodeExecuteScriptParams,
		Handler:     handleExecuteScript,
	})
}

func handleExecuteScript(ctx context.Context, params Params, _ *Context) (*Result, error) {
	p := params.(ExecuteScriptParams)

	res, err := interp.NewExecutor().Run(ctx, p.Script)
	if err != nil {
		return Error(err.Error()), nil
	}
	return Success("script executed", res.Stdout), nil
}
