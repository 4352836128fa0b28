package executor

import (
	"os"
	"path/filepath"
)

// workspace is a disposable working directory for one script execution.
// It is acquired at the start of execution and released unconditionally on
// every exit path; concurrent executions never share one.
type workspace struct {
	dir string
}

// newWorkspace creates an isolated temporary directory.
func newWorkspace() (*workspace, error) {
	dir, err := os.MkdirTemp("", "katrbc-test-")
	if err != nil {
		return nil, err
	}
	return &workspace{dir: dir}, nil
}

// WriteFile materializes a file inside the workspace.
func (w *workspace) WriteFile(name, content string) error {
	return os.WriteFile(filepath.Join(w.dir, name), []byte(content), 0o600)
}

// Path returns the absolute path of a file inside the workspace.
func (w *workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Release discards the workspace and all its contents. Safe to call on every
// exit path; errors are ignored because the directory lives under the system
// temp root.
func (w *workspace) Release() {
	_ = os.RemoveAll(w.dir)
}
