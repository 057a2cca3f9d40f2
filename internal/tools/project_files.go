package tools

import (
	"context"
	"os"
	"sort"

	"github.com/loomhq/loom/internal/errs"
)

func init() {
	Default.MustRegister(&Tool{
		Name:        "read_project_file",
		Description: "Read a server-owned project file from the configured allow-list.",
		Decode:      decodeReadProjectFileParams,
		Handler:     handleReadProjectFile,
	})
	Default.MustRegister(&Tool{
		Name:        "list_allowed_project_files",
		Description: "Return the configured project file allow-list.",
		Decode:      decodeNoParams("list_allowed_project_files"),
		Handler:     handleListAllowedProjectFiles,
	})
}

func handleReadProjectFile(_ context.Context, params Params, hc *Context) (*Result, error) {
	p := params.(ReadProjectFileParams)

	abs, ok := hc.AllowedProjectFiles[p.Filename]
	if !ok {
		return Error(errs.Wrapf(errs.NotFound, "read_project_file: %s is not on the allow-list", p.Filename).Error()), nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return Error(errs.Wrapf(errs.Unknown, "read_project_file: %v", err).Error()), nil
	}
	return Success("project file read: "+p.Filename, string(data)), nil
}

func handleListAllowedProjectFiles(_ context.Context, _ Params, hc *Context) (*Result, error) {
	names := make([]string, 0, len(hc.AllowedProjectFiles))
	for name := range hc.AllowedProjectFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return Success("allowed project files", names), nil
}
