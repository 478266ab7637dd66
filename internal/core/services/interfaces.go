package services

import (
	"context"

	"github.com/foundry/artifactview/internal/core/models"
)

// SourceBackend answers questions about projects, packages and their revisions.
type SourceBackend interface {
	// Project returns project meta, or nil if the project does not exist.
	Project(ctx context.Context, project string) (*models.Project, error)

	// Package returns package meta, or nil if the package does not exist.
	Package(ctx context.Context, project, pkg string) (*models.Package, error)

	// ListRevisions returns the number of the newest revision (0 for none).
	ListRevisions(ctx context.Context, project, pkg string) (int, error)

	// FetchDiff returns the rendered diff, one entry per changed file, in backend order.
	FetchDiff(ctx context.Context, q models.DiffQuery) ([]models.DiffFile, error)

	// MultibuildFlavors returns the flavors the backend reports for a package.
	// A package without a multibuild definition has none.
	MultibuildFlavors(ctx context.Context, project, pkg string) ([]string, error)
}

// LogBackend reads build logs. Absent logs are reported as nil, not as errors.
type LogBackend interface {
	// Project is used for the repository/arch existence check.
	Project(ctx context.Context, project string) (*models.Project, error)

	// LogEntryInfo returns the current size of the log, or nil if none was produced yet.
	LogEntryInfo(ctx context.Context, t models.BuildTarget) (*models.LogEntryInfo, error)

	// FetchLogChunk returns at most length bytes starting at offset.
	FetchLogChunk(ctx context.Context, t models.BuildTarget, offset, length int64) ([]byte, error)
}

// BuildBackend reports on build jobs and results.
type BuildBackend interface {
	// JobStatus returns the raw job status, or nil when no job is running.
	JobStatus(ctx context.Context, t models.BuildTarget) (*models.RawJobStatus, error)

	// BuildStatus returns the result code of the status entry matching t.Package.
	BuildStatus(ctx context.Context, t models.BuildTarget) (string, error)

	// DependentsOf returns the packages depending on t.Package.
	DependentsOf(ctx context.Context, t models.BuildTarget) ([]string, error)
}

// Backend is the complete set of backend operations the views consume.
type Backend interface {
	SourceBackend
	LogBackend
	BuildBackend
}

// Authenticator validates request tokens.
type Authenticator interface {
	// ValidateToken checks if a token is valid.
	ValidateToken(token string) bool
}
