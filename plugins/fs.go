package plugins

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileExistsValidator passes when the file at args["path"] exists.
// Relative paths are joined with the context's project_root. With
// args["not_empty"] set, the file must also be non-empty.
type FileExistsValidator struct{}

// Validate implements Validator.
func (v *FileExistsValidator) Validate(args map[string]interface{}, context map[string]interface{}) (bool, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return false, fmt.Errorf("file_exists: missing required arg %q", "path")
	}

	if !filepath.IsAbs(path) {
		if root, ok := context["project_root"].(string); ok && root != "" {
			path = filepath.Join(root, path)
		}
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if notEmpty, _ := args["not_empty"].(bool); notEmpty {
		return info.Size() > 0, nil
	}
	return true, nil
}
