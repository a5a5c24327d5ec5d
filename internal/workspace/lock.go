package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sitewarden/sitewarden/internal/common"
)

// ProjectLock is the advisory writer lock for one project. It is a lock file
// created with O_EXCL; readers never take it.
type ProjectLock struct {
	path string
}

// LockProject acquires the writer lock for a project, failing immediately if
// another writer holds it.
func (w *Workspace) LockProject(slug string) (*ProjectLock, error) {
	path := filepath.Join(w.ProjectDir(slug), ".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, common.ResourceError(nil, "project %q is locked by another writer", slug)
		}
		return nil, common.ResourceError(err, "failed to lock project %q", slug)
	}
	fmt.Fprintf(f, "pid=%d at=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	f.Close()
	return &ProjectLock{path: path}, nil
}

// Release drops the lock. Safe to call twice.
func (l *ProjectLock) Release() {
	_ = os.Remove(l.path)
}
