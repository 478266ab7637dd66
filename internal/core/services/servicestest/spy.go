// Package servicestest provides an in-memory Backend for tests.
package servicestest

import (
	"context"
	"slices"
	"sync"

	"github.com/foundry/artifactview/internal/core/models"
	"github.com/foundry/artifactview/internal/core/services"
)

const (
	CallProject           = "Project"
	CallPackage           = "Package"
	CallListRevisions     = "ListRevisions"
	CallFetchDiff         = "FetchDiff"
	CallMultibuildFlavors = "MultibuildFlavors"
	CallLogEntryInfo      = "LogEntryInfo"
	CallFetchLogChunk     = "FetchLogChunk"
	CallJobStatus         = "JobStatus"
	CallBuildStatus       = "BuildStatus"
	CallDependentsOf      = "DependentsOf"
)

// SpyBackend serves fixed data and records every call by name.
// Maps are keyed by project, "project/package" or the composite package name.
type SpyBackend struct {
	Projects  map[string]*models.Project
	Packages  map[string]*models.Package
	Revisions map[string]int
	Diffs     map[string][]models.DiffFile
	Flavors   map[string][]string
	Logs      map[string][]byte
	Jobs      map[string]*models.RawJobStatus
	Statuses  map[string]string
	Depends   map[string][]string

	// Err, when set for a call name, is returned by that call.
	Err map[string]error

	mu    sync.Mutex
	calls []string
	diffs []models.DiffQuery
}

var _ services.Backend = (*SpyBackend)(nil)

// NewSpyBackend returns an empty backend.
func NewSpyBackend() *SpyBackend {
	return &SpyBackend{
		Projects:  map[string]*models.Project{},
		Packages:  map[string]*models.Package{},
		Revisions: map[string]int{},
		Diffs:     map[string][]models.DiffFile{},
		Flavors:   map[string][]string{},
		Logs:      map[string][]byte{},
		Jobs:      map[string]*models.RawJobStatus{},
		Statuses:  map[string]string{},
		Depends:   map[string][]string{},
		Err:       map[string]error{},
	}
}

// AddPackage registers project (with repo/arch) and package.
func (s *SpyBackend) AddPackage(project, pkg, repo string, archs ...string) {
	p, ok := s.Projects[project]
	if !ok {
		p = &models.Project{Name: project}
		s.Projects[project] = p
	}
	if repo != "" {
		p.Repositories = append(p.Repositories, models.Repository{Name: repo, Archs: archs})
	}
	s.Packages[project+"/"+pkg] = &models.Package{Project: project, Name: pkg}
}

// Calls returns the recorded call names in order.
func (s *SpyBackend) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Count returns how often call was made.
func (s *SpyBackend) Count(call string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// DiffQueries returns the queries passed to FetchDiff.
func (s *SpyBackend) DiffQueries() []models.DiffQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.diffs)
}

func (s *SpyBackend) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.Err[call]
}

func (s *SpyBackend) Project(ctx context.Context, project string) (*models.Project, error) {
	if err := s.record(CallProject); err != nil {
		return nil, err
	}
	return s.Projects[project], nil
}

func (s *SpyBackend) Package(ctx context.Context, project, pkg string) (*models.Package, error) {
	if err := s.record(CallPackage); err != nil {
		return nil, err
	}
	return s.Packages[project+"/"+pkg], nil
}

func (s *SpyBackend) ListRevisions(ctx context.Context, project, pkg string) (int, error) {
	if err := s.record(CallListRevisions); err != nil {
		return 0, err
	}
	return s.Revisions[project+"/"+pkg], nil
}

func (s *SpyBackend) FetchDiff(ctx context.Context, q models.DiffQuery) ([]models.DiffFile, error) {
	if err := s.record(CallFetchDiff); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.diffs = append(s.diffs, q)
	s.mu.Unlock()
	return slices.Clone(s.Diffs[q.Project+"/"+q.Package]), nil
}

func (s *SpyBackend) MultibuildFlavors(ctx context.Context, project, pkg string) ([]string, error) {
	if err := s.record(CallMultibuildFlavors); err != nil {
		return nil, err
	}
	return s.Flavors[project+"/"+pkg], nil
}

func (s *SpyBackend) LogEntryInfo(ctx context.Context, t models.BuildTarget) (*models.LogEntryInfo, error) {
	if err := s.record(CallLogEntryInfo); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.Logs[t.Package]
	if !ok {
		return nil, nil
	}
	return &models.LogEntryInfo{Size: int64(len(data))}, nil
}

func (s *SpyBackend) FetchLogChunk(ctx context.Context, t models.BuildTarget, offset, length int64) ([]byte, error) {
	if err := s.record(CallFetchLogChunk); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.Logs[t.Package]
	if offset >= int64(len(data)) {
		return []byte{}, nil
	}
	end := min(offset+length, int64(len(data)))
	return slices.Clone(data[offset:end]), nil
}

// AppendLog grows the log of pkg, as a running build would.
func (s *SpyBackend) AppendLog(pkg string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Logs[pkg] = append(s.Logs[pkg], data...)
}

func (s *SpyBackend) JobStatus(ctx context.Context, t models.BuildTarget) (*models.RawJobStatus, error) {
	if err := s.record(CallJobStatus); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Jobs[t.Package], nil
}

// SetJob replaces the job status of pkg while other goroutines poll.
func (s *SpyBackend) SetJob(pkg string, job *models.RawJobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Jobs[pkg] = job
}

func (s *SpyBackend) BuildStatus(ctx context.Context, t models.BuildTarget) (string, error) {
	if err := s.record(CallBuildStatus); err != nil {
		return "", err
	}
	return s.Statuses[t.Package], nil
}

func (s *SpyBackend) DependentsOf(ctx context.Context, t models.BuildTarget) ([]string, error) {
	if err := s.record(CallDependentsOf); err != nil {
		return nil, err
	}
	return s.Depends[t.Package], nil
}
