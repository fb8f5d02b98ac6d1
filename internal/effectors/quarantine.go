package effectors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// QuarantineRequest is the action data of a QuarantineFile suggestion.
type QuarantineRequest struct {
	Path string `json:"path"`
}

type quarantineBefore struct {
	Path   string      `json:"path"`
	Mode   os.FileMode `json:"mode"`
	SHA256 string      `json:"sha256"`
	Size   int64       `json:"size"`
}

type quarantineAfter struct {
	QuarantinePath string `json:"quarantine_path"`
}

// QuarantineFile moves a file into the quarantine directory and strips its
// permissions. Rollback moves it back with the original mode.
type QuarantineFile struct {
	dir string
}

func NewQuarantineFile(dir string) *QuarantineFile {
	return &QuarantineFile{dir: dir}
}

func parseQuarantine(data json.RawMessage) (QuarantineRequest, error) {
	var req QuarantineRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode quarantine_file data: %w", err)
	}
	req.Path = strings.TrimSpace(req.Path)
	if req.Path == "" {
		return req, errors.New("path is required")
	}
	if !filepath.IsAbs(req.Path) {
		return req, fmt.Errorf("path must be absolute: %q", req.Path)
	}
	req.Path = filepath.Clean(req.Path)
	return req, nil
}

func (q *QuarantineFile) Validate(data json.RawMessage) error {
	_, err := parseQuarantine(data)
	return err
}

func (q *QuarantineFile) Execute(ctx context.Context, data json.RawMessage) (json.RawMessage, json.RawMessage, error) {
	req, err := parseQuarantine(data)
	if err != nil {
		return nil, nil, err
	}
	if q.dir == "" {
		return nil, nil, errors.New("quarantine directory is not configured")
	}
	if strings.HasPrefix(req.Path, filepath.Clean(q.dir)+string(os.PathSeparator)) {
		return nil, nil, fmt.Errorf("%s is already in quarantine", req.Path)
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %w", req.Path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil, fmt.Errorf("%s is not a regular file", req.Path)
	}
	sum, err := fileSHA256(req.Path)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(q.dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create quarantine dir: %w", err)
	}
	dest := filepath.Join(q.dir, uuid.NewString()+"-"+filepath.Base(req.Path))
	if err := os.Rename(req.Path, dest); err != nil {
		return nil, nil, fmt.Errorf("move %s into quarantine: %w", req.Path, err)
	}
	if err := os.Chmod(dest, 0o400); err != nil {
		if restoreErr := os.Rename(dest, req.Path); restoreErr != nil {
			return nil, nil, errors.Join(fmt.Errorf("lock down %s: %w", dest, err), restoreErr)
		}
		return nil, nil, fmt.Errorf("lock down %s: %w", dest, err)
	}

	before, _ := json.Marshal(quarantineBefore{Path: req.Path, Mode: info.Mode().Perm(), SHA256: sum, Size: info.Size()})
	after, _ := json.Marshal(quarantineAfter{QuarantinePath: dest})
	return before, after, nil
}

// Rollback restores the file unless something now occupies its original path.
func (q *QuarantineFile) Rollback(ctx context.Context, before, after json.RawMessage) error {
	var b quarantineBefore
	if err := json.Unmarshal(before, &b); err != nil || b.Path == "" {
		return errors.New("before state has no original path")
	}
	var a quarantineAfter
	if err := json.Unmarshal(after, &a); err != nil || a.QuarantinePath == "" {
		return errors.New("after state has no quarantine path")
	}

	if _, err := os.Stat(b.Path); err == nil {
		// A previous attempt may have moved the file back and then failed.
		if !q.restoredEarlier(b, a) {
			return fmt.Errorf("restore %s: path is occupied", b.Path)
		}
		if err := os.Chmod(b.Path, b.Mode); err != nil {
			return fmt.Errorf("restore mode of %s: %w", b.Path, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(b.Path), 0o755); err != nil {
		return fmt.Errorf("restore %s: %w", b.Path, err)
	}
	if err := os.Rename(a.QuarantinePath, b.Path); err != nil {
		return fmt.Errorf("restore %s: %w", b.Path, err)
	}
	if err := os.Chmod(b.Path, b.Mode); err != nil {
		return fmt.Errorf("restore mode of %s: %w", b.Path, err)
	}
	return nil
}

// restoredEarlier reports whether the original path already holds the
// quarantined file: the quarantine copy is gone and the content hash matches.
func (q *QuarantineFile) restoredEarlier(b quarantineBefore, a quarantineAfter) bool {
	if _, err := os.Stat(a.QuarantinePath); !errors.Is(err, fs.ErrNotExist) {
		return false
	}
	sum, err := fileSHA256(b.Path)
	return err == nil && b.SHA256 != "" && sum == b.SHA256
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
