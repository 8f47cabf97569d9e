package targets

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// FileName is the name of a targets document on disk.
const FileName = "targets.yaml"

// Cache stores parsed documents keyed by path. An entry is valid only while
// the file's modification time and size are unchanged.
type Cache interface {
	LookupDocument(path string, modTime time.Time, size int64) (*Document, bool)
	StoreDocument(path string, modTime time.Time, size int64, doc *Document) error
}

// Loader reads the workspace-global and directory-local documents.
type Loader struct {
	Cache Cache
}

// Load returns the global (workspace root) and local (cwd) documents. Either
// is nil when absent. The local layer is skipped when cwd is the workspace
// root itself.
func (l *Loader) Load(workspaceRoot, cwd string) (global, local *Document, err error) {
	if workspaceRoot != "" {
		global, err = l.LoadFile(filepath.Join(workspaceRoot, FileName))
		if err != nil {
			return nil, nil, err
		}
	}
	if workspaceRoot == "" || !samePath(workspaceRoot, cwd) {
		local, err = l.LoadFile(filepath.Join(cwd, FileName))
		if err != nil {
			return nil, nil, err
		}
	}
	return global, local, nil
}

// LoadFile parses one document. A missing file yields nil, nil.
func (l *Loader) LoadFile(path string) (*Document, error) {
	st, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.IsDir() {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("is a directory")}
	}
	if l.Cache != nil {
		if doc, ok := l.Cache.LookupDocument(path, st.ModTime(), st.Size()); ok {
			log.Trace().Str("file", path).Msg("targets config from cache")
			return doc, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	if l.Cache != nil {
		if err := l.Cache.StoreDocument(path, st.ModTime(), st.Size(), doc); err != nil {
			log.Debug().Err(err).Str("file", path).Msg("cannot cache targets config")
		}
	}
	return doc, nil
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return aa == bb
}
