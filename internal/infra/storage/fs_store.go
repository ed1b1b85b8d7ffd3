package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2/maybe"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/repository"
)

var (
	_ repository.ArtifactStore  = (*FSStore)(nil)
	_ repository.JobStatusStore = (*FSStatusStore)(nil)
)

// statusFile is the per-job status record used when no shared status backend is configured.
const statusFile = ".status"

// FSStore keeps each job under <data dir>/jobs/<job id>/.
type FSStore struct {
	root string
}

func NewFSStore(dataDir string) (*FSStore, error) {
	root := filepath.Join(dataDir, "jobs")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{root: root}, nil
}

// Root is the directory holding one subdirectory per job.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) jobDir(jobID string) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || strings.Contains(jobID, "..") {
		return "", domain.InvalidInputError("job id", nil)
	}
	return filepath.Join(s.root, jobID), nil
}

func (s *FSStore) path(jobID, name string) (string, error) {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return "", err
	}
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", domain.InvalidInputError("artifact name", nil)
	}
	return filepath.Join(dir, name), nil
}

func (s *FSStore) CreateNamespace(ctx context.Context, jobID string) error {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *FSStore) NamespaceExists(ctx context.Context, jobID string) (bool, error) {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return false, nil
	}
	fi, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

// Put replaces the artifact atomically so readers never see a partial file.
func (s *FSStore) Put(ctx context.Context, jobID, name string, data []byte) error {
	p, err := s.path(jobID, name)
	if err != nil {
		return err
	}
	return maybe.WriteFile(p, data, 0o644)
}

func (s *FSStore) Get(ctx context.Context, jobID, name string) ([]byte, error) {
	p, err := s.path(jobID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	return data, err
}

func (s *FSStore) List(ctx context.Context, jobID string) ([]string, error) {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// FSStatusStore writes the job record into the job's own directory.
type FSStatusStore struct {
	files *FSStore
}

func NewFSStatusStore(files *FSStore) *FSStatusStore {
	return &FSStatusStore{files: files}
}

func (s *FSStatusStore) Put(ctx context.Context, rec model.JobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.files.CreateNamespace(ctx, rec.ID); err != nil {
		return err
	}
	return s.files.Put(ctx, rec.ID, statusFile, data)
}

func (s *FSStatusStore) Get(ctx context.Context, jobID string) (model.JobRecord, error) {
	data, err := s.files.Get(ctx, jobID, statusFile)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || domain.KindOf(err) == domain.KindInvalidInput {
			return model.JobRecord{}, domain.NotFoundError("job "+jobID, nil)
		}
		return model.JobRecord{}, domain.StorageError("read job status", err)
	}
	var rec model.JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.JobRecord{}, domain.StorageError("decode job status", err)
	}
	return rec, nil
}
