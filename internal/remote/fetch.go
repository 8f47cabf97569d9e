package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// TestsPath returns <root>/<contest>/<task>/tests on the remote host.
func TestsPath(root, contest, task string) string {
	return path.Join(root, contest, task, "tests")
}

// FetchReport lists what a fetch did.
type FetchReport struct {
	Downloaded []string
	Skipped    []string
	Bytes      int64
}

// FetchTests copies regular files of remoteDir into localDir. Existing
// local files are kept unless force is set.
func FetchTests(ctx context.Context, sf *sftp.Client, remoteDir, localDir string, force bool) (*FetchReport, error) {
	infos, err := sf.ReadDir(remoteDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", remoteDir, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir local: %w", err)
	}

	rep := &FetchReport{}
	for _, fi := range infos {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if !fi.Mode().IsRegular() {
			continue
		}
		name := fi.Name()
		dst := filepath.Join(localDir, name)
		if _, err := os.Stat(dst); err == nil && !force {
			rep.Skipped = append(rep.Skipped, name)
			continue
		}
		n, err := pullFile(sf, path.Join(remoteDir, name), dst)
		if err != nil {
			return rep, err
		}
		log.Debug().Str("file", dst).Int64("bytes", n).Msg("fetched")
		rep.Downloaded = append(rep.Downloaded, name)
		rep.Bytes += n
	}
	return rep, nil
}

// pullFile downloads a remote file via a temp file next to localPath.
func pullFile(sf *sftp.Client, remotePath, localPath string) (int64, error) {
	src, err := sf.Open(remotePath)
	if err != nil {
		return 0, fmt.Errorf("open remote: %w", err)
	}
	defer src.Close()
	tmp, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+".tmp.*")
	if err != nil {
		return 0, fmt.Errorf("create local: %w", err)
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("copy %s: %w", remotePath, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return 0, err
	}
	return n, nil
}
