package models

import (
	"path"
	"strings"
	"time"
)

// DiffKind classifies how a diff entry was rendered by the backend.
type DiffKind string

const (
	DiffKindText            DiffKind = "text"
	DiffKindBinaryOrArchive DiffKind = "binary_or_archive"
)

var archiveSuffixes = []string{
	".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tbz2", ".tar.xz", ".txz", ".tar.zst",
	".zip", ".gz", ".bz2", ".xz", ".zst", ".cpio", ".rpm", ".deb", ".gem", ".obscpio",
}

// ClassifyDiffPath reports whether path names an archive or an archive member.
// The backend expands archives into "archive.tar.gz/member" entries.
func ClassifyDiffPath(p string) DiffKind {
	for dir := p; dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
		base := strings.ToLower(path.Base(dir))
		for _, suffix := range archiveSuffixes {
			if strings.HasSuffix(base, suffix) {
				return DiffKindBinaryOrArchive
			}
		}
	}
	return DiffKindText
}

// DiffFile is one file of a source diff, rendered as unified diff text.
type DiffFile struct {
	Path      string   `json:"path"`
	OldPath   string   `json:"old_path,omitempty"`
	State     string   `json:"state"`
	Kind      DiffKind `json:"kind"`
	Content   []byte   `json:"-"`
	Lines     int      `json:"lines"`
	Truncated bool     `json:"truncated"`
}

// PackageRef addresses a package, optionally one flavor of a multibuild package.
type PackageRef struct {
	Project  string `json:"project"`
	BaseName string `json:"base_name"`
	Flavor   string `json:"flavor,omitempty"`
}

// Name returns the composite identifier: "base" or "base:flavor".
func (r PackageRef) Name() string {
	if r.Flavor == "" {
		return r.BaseName
	}
	return r.BaseName + ":" + r.Flavor
}

// IsMultibuild reports whether the ref addresses a flavor.
func (r PackageRef) IsMultibuild() bool {
	return r.Flavor != ""
}

// BuildTarget identifies one build result: a package built for repository/arch.
type BuildTarget struct {
	Project    string
	Package    string // composite identifier
	Repository string
	Arch       string
}

// LogCursor tracks how far a caller has read a remote build log.
// Offset never exceeds RemoteSize.
type LogCursor struct {
	RemoteSize int64 `json:"remote_size"`
	Offset     int64 `json:"offset"`
}

// LogEntryInfo describes the remote log file as reported by the backend.
type LogEntryInfo struct {
	Size  int64
	MTime time.Time
}

// RawJobStatus is the decoded _jobstatus payload, still in backend terms.
type RawJobStatus struct {
	WorkerID  string
	StartTime string
	Code      string
}

// JobStatus summarizes a running build job. Zero value means "not building".
type JobStatus struct {
	WorkerID  string
	StartTime *time.Time
}

// Building reports whether a worker is currently assigned.
func (s JobStatus) Building() bool {
	return s.WorkerID != ""
}

// Elapsed returns now - start time; ok is false when the start time is unknown.
func (s JobStatus) Elapsed(now time.Time) (time.Duration, bool) {
	if s.StartTime == nil {
		return 0, false
	}
	d := now.Sub(*s.StartTime)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Project is the subset of project meta the views need.
type Project struct {
	Name         string
	Repositories []Repository
}

// HasRepositoryArch reports whether repo is defined with arch enabled.
func (p *Project) HasRepositoryArch(repo, arch string) bool {
	for _, r := range p.Repositories {
		if r.Name != repo {
			continue
		}
		for _, a := range r.Archs {
			if a == arch {
				return true
			}
		}
	}
	return false
}

// Repository is a build repository and its architectures.
type Repository struct {
	Name  string
	Archs []string
}

// Package is the subset of package meta the views need.
type Package struct {
	Project              string
	Name                 string
	SourceAccessDisabled bool
}

// DiffQuery selects the two sides of an rdiff.
type DiffQuery struct {
	Project    string
	Package    string
	Rev        string
	OldRev     string
	OldProject string
	OldPackage string
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// RedirectResponse is written for failed synchronous views.
type RedirectResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RedirectTo string `json:"redirect_to"`
}
