package tools

import (
	"context"

	"github.com/loomhq/loom/internal/patch"
)

func init() {
	Default.MustRegister(&Tool{
		Name:        "apply_patch",
		Description: "Apply a unified diff to a file under the sandbox; source/target paths come from the diff headers.",
		Decode:      decodeApplyPatchParams,
		Handler:     handleApplyPatch,
	})
}

func handleApplyPatch(_ context.Context, params Params, hc *Context) (*Result, error) {
	p := params.(ApplyPatchParams)

	applier := patch.NewApplier(hc.Guard)
	res, err := applier.Apply(p.DiffContent)
	if err != nil {
		return Error(err.Error()), nil
	}
	return Success("patch applied: "+res.TargetPath, map[string]any{"target": res.TargetPath}), nil
}
