package tools

import "fmt"

// getString extracts a required string parameter, returning an error
// message suitable for wrapping in an error Result on failure.
func getString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string", key)
	}
	return s, nil
}

// getStringOptional extracts an optional string parameter, defaulting to
// def when absent or of the wrong type.
func getStringOptional(params map[string]any, key, def string) string {
	v, ok := params[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// NoParams is the Params implementation for actions that take none.
type NoParams struct{ action string }

func (p NoParams) Action() string { return p.action }

func decodeNoParams(action string) DecodeFunc {
	return func(map[string]any) (Params, error) {
		return NoParams{action: action}, nil
	}
}

type CreateFileParams struct {
	Filename string
	Content  string
}

func (CreateFileParams) Action() string { return "create_file" }

func decodeCreateFileParams(raw map[string]any) (Params, error) {
	filename, err := getString(raw, "filename")
	if err != nil {
		return nil, err
	}
	content, err := getString(raw, "content")
	if err != nil {
		return nil, err
	}
	return CreateFileParams{Filename: filename, Content: content}, nil
}

type ReadFileParams struct{ Filename string }

func (ReadFileParams) Action() string { return "read_file" }

func decodeReadFileParams(raw map[string]any) (Params, error) {
	filename, err := getString(raw, "filename")
	if err != nil {
		return nil, err
	}
	return ReadFileParams{Filename: filename}, nil
}

type DeleteFileParams struct{ Filename string }

func (DeleteFileParams) Action() string { return "delete_file" }

func decodeDeleteFileParams(raw map[string]any) (Params, error) {
	filename, err := getString(raw, "filename")
	if err != nil {
		return nil, err
	}
	return DeleteFileParams{Filename: filename}, nil
}

type ListDirectoryParams struct{ Path string }

func (ListDirectoryParams) Action() string { return "list_directory" }

func decodeListDirectoryParams(raw map[string]any) (Params, error) {
	return ListDirectoryParams{Path: getStringOptional(raw, "path", ".")}, nil
}

type SessionNameParams struct {
	action string
	Name   string
}

func (p SessionNameParams) Action() string { return p.action }

func decodeSessionNameParams(action string) DecodeFunc {
	return func(raw map[string]any) (Params, error) {
		name, err := getString(raw, "session_name")
		if err != nil {
			return nil, err
		}
		return SessionNameParams{action: action, Name: name}, nil
	}
}

type ApplyPatchParams struct{ DiffContent string }

func (ApplyPatchParams) Action() string { return "apply_patch" }

func decodeApplyPatchParams(raw map[string]any) (Params, error) {
	diff, err := getString(raw, "diff_content")
	if err != nil {
		return nil, err
	}
	return ApplyPatchParams{DiffContent: diff}, nil
}

type ExecuteScriptParams struct{ Script string }

func (ExecuteScriptParams) Action() string { return "execute_python_script" }

func decodeExecuteScriptParams(raw map[string]any) (Params, error) {
	script, err := getString(raw, "script")
	if err != nil {
		return nil, err
	}
	return ExecuteScriptParams{Script: script}, nil
}

type ReadProjectFileParams struct{ Filename string }

func (ReadProjectFileParams) Action() string { return "read_project_file" }

func decodeReadProjectFileParams(raw map[string]any) (Params, error) {
	filename, err := getString(raw, "filename")
	if err != nil {
		return nil, err
	}
	return ReadProjectFileParams{Filename: filename}, nil
}
