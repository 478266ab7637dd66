// Package views assembles revision, rdiff and build log pages from backend
// data. Every call works on fresh data; nothing is cached between requests.
package views

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/foundry/artifactview/internal/core/buildlog"
	"github.com/foundry/artifactview/internal/core/diffbudget"
	"github.com/foundry/artifactview/internal/core/jobstatus"
	"github.com/foundry/artifactview/internal/core/models"
	"github.com/foundry/artifactview/internal/core/multibuild"
	"github.com/foundry/artifactview/internal/core/revwindow"
	"github.com/foundry/artifactview/internal/core/services"
)

// Config holds the view tunables.
type Config struct {
	PageSize       int
	DiffBudget     diffbudget.Budget
	LogChunkSize   int64
	InitialLogSize int64
	ElideLength    int
}

// DefaultConfig returns the standard page and budget sizes.
func DefaultConfig() Config {
	return Config{
		PageSize:       revwindow.PageSize,
		DiffBudget:     diffbudget.Default(),
		LogChunkSize:   buildlog.DefaultChunkSize,
		InitialLogSize: buildlog.DefaultChunkSize,
		ElideLength:    20,
	}
}

// View orchestrates the calculators against a backend.
type View struct {
	backend services.Backend
	reader  *buildlog.Reader
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a View. Zero config fields fall back to DefaultConfig.
func New(backend services.Backend, cfg Config, logger zerolog.Logger) *View {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.DiffBudget.Total() <= 0 {
		cfg.DiffBudget = def.DiffBudget
	}
	if cfg.LogChunkSize <= 0 {
		cfg.LogChunkSize = def.LogChunkSize
	}
	if cfg.InitialLogSize <= 0 {
		cfg.InitialLogSize = def.InitialLogSize
	}
	if cfg.ElideLength <= 0 {
		cfg.ElideLength = def.ElideLength
	}
	return &View{
		backend: backend,
		reader:  buildlog.NewReader(backend, cfg.LogChunkSize),
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// RevisionsRequest asks for one page of a package's revision history.
// Rev, when set, caps the newest revision shown.
type RevisionsRequest struct {
	Project string
	Package string
	Rev     string
	Page    int
	ShowAll bool
}

// RevisionsPage lists revision numbers, newest first.
type RevisionsPage struct {
	Project    string `json:"project"`
	Package    string `json:"package"`
	Revisions  []int  `json:"revisions"`
	Ceiling    int    `json:"ceiling"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	HasMore    bool   `json:"has_more"`
	ShowAll    bool   `json:"show_all"`
}

// Revisions resolves the ceiling and computes the page window.
func (v *View) Revisions(ctx context.Context, req RevisionsRequest) Result[RevisionsPage] {
	var explicit int
	if req.Rev != "" {
		n, err := strconv.Atoi(req.Rev)
		if err != nil || n < 1 {
			return redirect[RevisionsPage](&failure{
				target:  packageTarget(req.Project, req.Package),
				message: fmt.Sprintf("Invalid revision: %s", req.Rev),
				err:     fmt.Errorf("%w: revision %q", services.ErrValidation, req.Rev),
			})
		}
		explicit = n
	}

	if f := v.checkSourceAccess(ctx, req.Project, req.Package); f != nil {
		return redirect[RevisionsPage](f)
	}

	ceiling := explicit
	if ceiling == 0 {
		n, err := v.backend.ListRevisions(ctx, req.Project, req.Package)
		if err != nil {
			return redirect[RevisionsPage](v.backendFailure(packageTarget(req.Project, req.Package), "Could not list revisions", err))
		}
		ceiling = n
	}

	page := max(req.Page, 1)
	revs := revwindow.WindowSize(ceiling, page, v.cfg.PageSize, req.ShowAll)
	total := revwindow.Pages(ceiling, v.cfg.PageSize)
	if req.ShowAll {
		page, total = 1, min(total, 1)
	}
	return success(RevisionsPage{
		Project:    req.Project,
		Package:    req.Package,
		Revisions:  revs,
		Ceiling:    max(ceiling, 0),
		Page:       page,
		TotalPages: total,
		HasMore:    !req.ShowAll && page < total,
		ShowAll:    req.ShowAll,
	})
}

// RdiffRequest compares two source states. A nil Rev means "current";
// a non-nil empty Rev is rejected.
type RdiffRequest struct {
	Project    string
	Package    string
	Rev        *string
	OldRev     string
	OldProject string
	OldPackage string
	FullDiff   bool
}

// RenderedFile is a diff file with its (possibly truncated) unified diff text.
type RenderedFile struct {
	models.DiffFile
	Diff string `json:"diff"`
}

// RdiffPage is the rendered difference. No differences means no files.
type RdiffPage struct {
	Project     string         `json:"project"`
	Package     string         `json:"package"`
	Rev         string         `json:"rev,omitempty"`
	OldProject  string         `json:"oproject,omitempty"`
	OldPackage  string         `json:"opackage,omitempty"`
	OldRev      string         `json:"orev,omitempty"`
	Filenames   []string       `json:"filenames"`
	Files       []RenderedFile `json:"files"`
	FullDiff    bool           `json:"full_diff"`
	NotFullDiff bool           `json:"not_full_diff"`
}

// Rdiff fetches the diff and applies the per-file line budget.
func (v *View) Rdiff(ctx context.Context, req RdiffRequest) Result[RdiffPage] {
	if req.Rev != nil && *req.Rev == "" {
		return redirect[RdiffPage](&failure{
			target:  packageTarget(req.Project, req.Package),
			message: "Error getting diff: revision is empty",
			err:     fmt.Errorf("%w: revision is empty", services.ErrValidation),
		})
	}

	if f := v.checkSourceAccess(ctx, req.Project, req.Package); f != nil {
		return redirect[RdiffPage](f)
	}

	q := models.DiffQuery{
		Project:    req.Project,
		Package:    req.Package,
		OldRev:     req.OldRev,
		OldProject: req.OldProject,
		OldPackage: req.OldPackage,
	}
	if req.Rev != nil {
		q.Rev = *req.Rev
	}
	files, err := v.backend.FetchDiff(ctx, q)
	if err != nil {
		return redirect[RdiffPage](v.backendFailure(packageTarget(req.Project, req.Package), "Error getting diff", err))
	}

	budgeted, truncated := v.cfg.DiffBudget.TruncateAll(files, req.FullDiff)
	page := RdiffPage{
		Project:     req.Project,
		Package:     req.Package,
		Rev:         q.Rev,
		OldProject:  req.OldProject,
		OldPackage:  req.OldPackage,
		OldRev:      req.OldRev,
		Filenames:   make([]string, 0, len(budgeted)),
		Files:       make([]RenderedFile, 0, len(budgeted)),
		FullDiff:    req.FullDiff,
		NotFullDiff: truncated,
	}
	for _, f := range budgeted {
		page.Filenames = append(page.Filenames, f.Path)
		page.Files = append(page.Files, RenderedFile{DiffFile: f, Diff: string(f.Content)})
	}
	return success(page)
}

// BuildLogRequest addresses the log of one build result. Package may be a
// multibuild composite "base:flavor".
type BuildLogRequest struct {
	Project    string
	Package    string
	Repository string
	Arch       string
}

// LivePage is the synchronous build log page.
type LivePage struct {
	Project          string         `json:"project"`
	Package          string         `json:"package"`
	PackageName      string         `json:"package_name"`
	Flavor           string         `json:"flavor,omitempty"`
	Repository       string         `json:"repository"`
	Arch             string         `json:"arch"`
	Log              string         `json:"log"`
	LogState         buildlog.State `json:"log_state"`
	Offset           int64          `json:"offset"`
	RemoteSize       int64          `json:"remote_size"`
	Status           string         `json:"status,omitempty"`
	Building         bool           `json:"building"`
	WorkerID         string         `json:"worker_id,omitempty"`
	BuildTimeSeconds *int64         `json:"build_time_seconds,omitempty"`
	WhatDependsOn    []string       `json:"what_depends_on"`
}

// LiveBuildLog loads the first chunk of the log together with job status,
// build result and reverse dependencies. Any failure redirects.
func (v *View) LiveBuildLog(ctx context.Context, req BuildLogRequest) Result[LivePage] {
	ref, target, f := v.resolveBuild(ctx, req)
	if f != nil {
		return redirect[LivePage](f)
	}

	chunk, err := v.reader.FullPageChunk(ctx, target, v.cfg.InitialLogSize)
	if err != nil {
		return redirect[LivePage](v.logFailure(ref, req, err))
	}

	raw, err := v.backend.JobStatus(ctx, target)
	if err != nil {
		return redirect[LivePage](v.logFailure(ref, req, err))
	}
	job := jobstatus.Summarize(raw)

	status, err := v.backend.BuildStatus(ctx, target)
	if err != nil {
		return redirect[LivePage](v.logFailure(ref, req, err))
	}

	dependents, err := v.backend.DependentsOf(ctx, target)
	if err != nil {
		return redirect[LivePage](v.logFailure(ref, req, err))
	}
	if dependents == nil {
		dependents = []string{}
	}

	return success(LivePage{
		Project:          ref.Project,
		Package:          ref.BaseName,
		PackageName:      ref.Name(),
		Flavor:           ref.Flavor,
		Repository:       req.Repository,
		Arch:             req.Arch,
		Log:              string(chunk.Data),
		LogState:         chunk.State,
		Offset:           chunk.Cursor.Offset,
		RemoteSize:       chunk.RemoteSize,
		Status:           status,
		Building:         job.Building(),
		WorkerID:         job.WorkerID,
		BuildTimeSeconds: jobstatus.ElapsedSeconds(job, v.now()),
		WhatDependsOn:    dependents,
	})
}

// PollRequest continues reading a log from Offset.
type PollRequest struct {
	BuildLogRequest
	Offset int64
}

// PollPage is the asynchronous build log update. Errors is the inline error
// slot; the polling session continues when it is set.
type PollPage struct {
	Project     string         `json:"project"`
	Package     string         `json:"package"`
	PackageName string         `json:"package_name"`
	Repository  string         `json:"repository"`
	Arch        string         `json:"arch"`
	LogChunk    string         `json:"log_chunk"`
	LogState    buildlog.State `json:"log_state,omitempty"`
	Offset      int64          `json:"offset"`
	RemoteSize  int64          `json:"remote_size"`
	Finished    bool           `json:"finished"`
	Errors      string         `json:"errors,omitempty"`
}

// PollBuildLog fetches the next chunk after req.Offset. Failures never
// redirect: they come back as an InlineError carrying the unchanged offset.
func (v *View) PollBuildLog(ctx context.Context, req PollRequest) Result[PollPage] {
	page := PollPage{
		Project:     req.Project,
		Package:     req.Package,
		PackageName: req.Package,
		Repository:  req.Repository,
		Arch:        req.Arch,
		Offset:      req.Offset,
	}

	if req.Offset < 0 {
		f := &failure{
			message: fmt.Sprintf("Invalid offset: %d", req.Offset),
			err:     fmt.Errorf("%w: negative offset", services.ErrValidation),
		}
		page.Errors = f.message
		return inline(page, f)
	}

	ref, target, f := v.resolveBuild(ctx, req.BuildLogRequest)
	if f != nil {
		page.Errors = f.message
		return inline(page, f)
	}
	page.Package = ref.BaseName
	page.PackageName = ref.Name()

	chunk, err := v.reader.PollNextChunk(ctx, target, models.LogCursor{Offset: req.Offset})
	if err != nil {
		f := v.logFailure(ref, req.BuildLogRequest, err)
		page.Errors = f.message
		return inline(page, f)
	}
	page.LogChunk = string(chunk.Data)
	page.LogState = chunk.State
	page.Offset = chunk.Cursor.Offset
	page.RemoteSize = chunk.RemoteSize

	switch chunk.State {
	case buildlog.StateNoNewData, buildlog.StateAbsent, buildlog.StateEmpty:
		raw, err := v.backend.JobStatus(ctx, target)
		if err != nil {
			f := v.logFailure(ref, req.BuildLogRequest, err)
			page.Errors = f.message
			return inline(page, f)
		}
		page.Finished = !jobstatus.Summarize(raw).Building()
	}
	return success(page)
}

// checkSourceAccess verifies project and package exist and that sources are readable.
func (v *View) checkSourceAccess(ctx context.Context, project, pkg string) *failure {
	if f := v.checkProject(ctx, project); f != nil {
		return f
	}
	meta, err := v.backend.Package(ctx, project, pkg)
	if err != nil {
		return v.backendFailure(projectTarget(project), "Could not read package", err)
	}
	if meta == nil {
		return packageNotFound(project, pkg)
	}
	if meta.SourceAccessDisabled {
		name := Elide(pkg, v.cfg.ElideLength)
		return &failure{
			target:  projectTarget(project),
			message: fmt.Sprintf("You don't have access to the sources of this package: %q", name),
			err:     &services.AccessDeniedError{Name: name},
		}
	}
	return nil
}

func (v *View) checkProject(ctx context.Context, project string) *failure {
	meta, err := v.backend.Project(ctx, project)
	if err != nil {
		return v.backendFailure(rootTarget(), "Could not read project", err)
	}
	if meta == nil {
		return &failure{
			target:  rootTarget(),
			message: fmt.Sprintf("Couldn't find project '%s'. Are you sure it still exists?", project),
			err:     fmt.Errorf("%w: project %s", services.ErrNotFound, project),
		}
	}
	return nil
}

// resolveBuild resolves the multibuild name and checks existence and access.
// All later addressing uses the composite name in the returned target.
func (v *View) resolveBuild(ctx context.Context, req BuildLogRequest) (models.PackageRef, models.BuildTarget, *failure) {
	if f := v.checkProject(ctx, req.Project); f != nil {
		return models.PackageRef{}, models.BuildTarget{}, f
	}

	ref, err := multibuild.Parse(req.Project, req.Package, func(base string) ([]string, error) {
		flavors, err := v.backend.MultibuildFlavors(ctx, req.Project, base)
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return flavors, err
	})
	if err != nil {
		return ref, models.BuildTarget{}, v.backendFailure(projectTarget(req.Project), "Could not access build log", err)
	}

	meta, err := v.backend.Package(ctx, req.Project, ref.BaseName)
	if err != nil {
		return ref, models.BuildTarget{}, v.backendFailure(projectTarget(req.Project), "Could not access build log", err)
	}
	if meta == nil {
		return ref, models.BuildTarget{}, packageNotFound(req.Project, ref.BaseName)
	}
	if meta.SourceAccessDisabled {
		return ref, models.BuildTarget{}, &failure{
			target:  packageTarget(req.Project, ref.BaseName),
			message: "Could not access build log",
			err:     &services.AccessDeniedError{Name: Elide(ref.BaseName, v.cfg.ElideLength)},
		}
	}

	return ref, models.BuildTarget{
		Project:    req.Project,
		Package:    ref.Name(),
		Repository: req.Repository,
		Arch:       req.Arch,
	}, nil
}

func (v *View) logFailure(ref models.PackageRef, req BuildLogRequest, err error) *failure {
	target := packageTarget(req.Project, ref.BaseName)
	switch {
	case errors.Is(err, buildlog.ErrUnknownTarget):
		return &failure{
			target:  target,
			message: fmt.Sprintf("Couldn't find repository '%s' with architecture '%s'", req.Repository, req.Arch),
			err:     err,
		}
	case errors.Is(err, buildlog.ErrUnknownProject):
		return &failure{
			target:  rootTarget(),
			message: fmt.Sprintf("Couldn't find project '%s'. Are you sure it still exists?", req.Project),
			err:     err,
		}
	}
	v.logger.Warn().
		Err(err).
		Str("project", req.Project).
		Str("package", ref.Name()).
		Str("repository", req.Repository).
		Str("arch", req.Arch).
		Msg("build log unavailable")
	return &failure{target: target, message: "Could not access build log", err: err}
}

func (v *View) backendFailure(target Target, prefix string, err error) *failure {
	v.logger.Warn().Err(err).Str("target", target.Path()).Msg(prefix)
	msg := prefix
	switch {
	case errors.Is(err, services.ErrAccessDenied):
		msg += ": access denied"
	case errors.Is(err, services.ErrNotFound):
		msg += ": not found"
	case errors.Is(err, services.ErrBackendUnavailable):
		msg += ": backend unavailable"
	}
	return &failure{target: target, message: msg, err: err}
}

func packageNotFound(project, pkg string) *failure {
	return &failure{
		target:  projectTarget(project),
		message: fmt.Sprintf("Couldn't find package '%s' in project '%s'. Are you sure it exists?", pkg, project),
		err:     fmt.Errorf("%w: package %s/%s", services.ErrNotFound, project, pkg),
	}
}
