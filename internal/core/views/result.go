package views

import (
	"net/url"
	"unicode/utf8"
)

// Outcome tags a Result.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRedirect    Outcome = "redirect"
	OutcomeInlineError Outcome = "inline_error"
)

// Result is what every view returns. Views never perform presentation I/O;
// the caller renders Model, follows Redirect, or shows the inline error.
type Result[T any] struct {
	Outcome  Outcome
	Model    T
	Redirect Target
	Message  string
	// Err is the classified cause behind a Redirect or InlineError.
	Err error
}

func success[T any](m T) Result[T] {
	return Result[T]{Outcome: OutcomeSuccess, Model: m}
}

func redirect[T any](f *failure) Result[T] {
	return Result[T]{Outcome: OutcomeRedirect, Redirect: f.target, Message: f.message, Err: f.err}
}

func inline[T any](m T, f *failure) Result[T] {
	return Result[T]{Outcome: OutcomeInlineError, Model: m, Message: f.message, Err: f.err}
}

type failure struct {
	target  Target
	message string
	err     error
}

// TargetKind selects the fallback page of a redirect.
type TargetKind string

const (
	TargetRoot    TargetKind = "root"
	TargetProject TargetKind = "project"
	TargetPackage TargetKind = "package"
)

// Target is a redirect destination.
type Target struct {
	Kind    TargetKind
	Project string
	Package string
}

func rootTarget() Target {
	return Target{Kind: TargetRoot}
}

func projectTarget(project string) Target {
	return Target{Kind: TargetProject, Project: project}
}

func packageTarget(project, pkg string) Target {
	return Target{Kind: TargetPackage, Project: project, Package: pkg}
}

// Path returns the API path of the target page.
func (t Target) Path() string {
	switch t.Kind {
	case TargetProject:
		return "/api/v1/projects/" + url.PathEscape(t.Project)
	case TargetPackage:
		return "/api/v1/projects/" + url.PathEscape(t.Project) + "/packages/" + url.PathEscape(t.Package)
	default:
		return "/"
	}
}

const ellipsis = "..."

// Elide shortens name to length runes by keeping its first and last
// segments around an ellipsis. Names that fit are returned unchanged.
func Elide(name string, length int) string {
	n := utf8.RuneCountInString(name)
	if length <= len(ellipsis) || n <= length {
		return name
	}
	runes := []rune(name)
	keep := length - len(ellipsis)
	left := (keep + 1) / 2
	right := keep / 2
	return string(runes[:left]) + ellipsis + string(runes[n-right:])
}
