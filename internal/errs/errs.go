// Package errs defines the error taxonomy shared by the analysis pipeline.
package errs

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind is a stable code identifying a class of analysis failure.
type Kind string

const (
	PathNotFound             Kind = "PATH_NOT_FOUND"
	PermissionDenied         Kind = "PERMISSION_DENIED"
	AnalysisFailed           Kind = "ANALYSIS_FAILED"
	IndexingFailed           Kind = "INDEXING_FAILED"
	RepositoryAnalysisFailed Kind = "REPOSITORY_ANALYSIS_FAILED"
	CacheError               Kind = "CACHE_ERROR"
)

// Sentinels for errors.Is checks. Any *Error of the same kind matches.
var (
	ErrPathNotFound             = &Error{Kind: PathNotFound}
	ErrPermissionDenied         = &Error{Kind: PermissionDenied}
	ErrAnalysisFailed           = &Error{Kind: AnalysisFailed}
	ErrIndexingFailed           = &Error{Kind: IndexingFailed}
	ErrRepositoryAnalysisFailed = &Error{Kind: RepositoryAnalysisFailed}
	ErrCacheError               = &Error{Kind: CacheError}
)

// Error is a typed analysis error.
type Error struct {
	Kind    Kind
	Message string
	Path    string
	cause   error
}

// New creates an Error of the given kind.
func New(kind Kind, path, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Path: path, cause: cause}
}

// Wrap classifies an I/O error for path, mapping os-level not-exist and
// permission errors onto their kinds and everything else onto fallback.
func Wrap(fallback Kind, path string, err error) *Error {
	kind := fallback
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = PathNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = PermissionDenied
	}
	return &Error{Kind: kind, Path: path, cause: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	} else if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Path, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Recoverable reports whether an analysis can continue past err.
// Repository metadata and per-file extraction failures are recoverable.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case RepositoryAnalysisFailed, AnalysisFailed, CacheError:
		return true
	}
	return false
}
