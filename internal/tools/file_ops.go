package tools

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loomhq/loom/internal/errs"
)

func init() {
	Default.MustRegister(&Tool{
		Name:        "create_file",
		Description: "Write a file under the sandbox, creating parent directories as needed.",
		Decode:      decodeCreateFileParams,
		Handler:     handleCreateFile,
	})
	Default.MustRegister(&Tool{
		Name:        "read_file",
		Description: "Read a file from the sandbox.",
		Decode:      decodeReadFileParams,
		Handler:     handleReadFile,
	})
	Default.MustRegister(&Tool{
		Name:        "delete_file",
		Description: "Remove a file from the sandbox.",
		Decode:      decodeDeleteFileParams,
		Handler:     handleDeleteFile,
	})
	Default.MustRegister(&Tool{
		Name:        "list_directory",
		Description: "Recursively list files under a sandbox path, skipping hidden and vendor directories.",
		Decode:      decodeListDirectoryParams,
		Handler:     handleListDirectory,
	})
}

var skippedDirNames = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".venv": true,
}

func handleCreateFile(_ context.Context, params Params, hc *Context) (*Result, error) {
	p := params.(CreateFileParams)

	abs, err := hc.Guard.SafePath(p.Filename)
	if err != nil {
		return Error(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Error(errs.Wrapf(errs.Unknown, "create_file: %v", err).Error()), nil
	}
	if err := os.WriteFile(abs, []byte(p.Content), 0o644); err != nil {
		return Error(errs.Wrapf(errs.Unknown, "create_file: %v", err).Error()), nil
	}
	return Success("file created: "+p.Filename, map[string]any{"filename": p.Filename, "bytes": len(p.Content)}), nil
}

func handleReadFile(_ context.Context, params Params, hc *Context) (*Result, error) {
	p := params.(ReadFileParams)

	abs, err := hc.Guard.SafePath(p.Filename)
	if err != nil {
		return Error(err.Error()), nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return Error(errs.Wrapf(errs.NotFound, "read_file: %s not found", p.Filename).Error()), nil
		}
		return Error(errs.Wrapf(errs.Unknown, "read_file: %v", err).Error()), nil
	}
	return Success("file read: "+p.Filename, string(data)), nil
}

func handleDeleteFile(_ context.Context, params Params, hc *Context) (*Result, error) {
	p := params.(DeleteFileParams)

	abs, err := hc.Guard.SafePath(p.Filename)
	if err != nil {
		return Error(err.Error()), nil
	}

	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return Error(errs.Wrapf(errs.NotFound, "delete_file: %s not found", p.Filename).Error()), nil
		}
		return Error(errs.Wrapf(errs.Unknown, "delete_file: %v", err).Error()), nil
	}
	return Success("file deleted: "+p.Filename, map[string]any{"filename": p.Filename}), nil
}

func handleListDirectory(_ context.Context, params Params, hc *Context) (*Result, error) {
	p := params.(ListDirectoryParams)

	abs, err := hc.Guard.SafePath(p.Path)
	if err != nil {
		return Error(err.Error()), nil
	}

	var files []string
	walkErr := filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if info.IsDir() {
			if path != abs && (strings.HasPrefix(name, ".") || skippedDirNames[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		relPath, relErr := filepath.Rel(abs, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, filepath.ToSlash(relPath))
		return nil
	})
	if walkErr != nil {
		if os.IsNotExist(walkErr) {
			return Error(errs.Wrapf(errs.NotFound, "list_directory: %s not found", p.Path).Error()), nil
		}
		return Error(errs.Wrapf(errs.Unknown, "list_directory: %v", walkErr).Error()), nil
	}

	sort.Strings(files)
	return Success("listed directory: "+p.Path, files), nil
}
