package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       *Error
		wantParts []string
	}{
		{
			name:      "with cause and path",
			err:       New(AnalysisFailed, "src/a.rs", "reading file", errors.New("boom")),
			wantParts: []string{"ANALYSIS_FAILED", "src/a.rs", "reading file", "boom"},
		},
		{
			name:      "kind only",
			err:       &Error{Kind: CacheError},
			wantParts: []string{"CACHE_ERROR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.err.Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestIsMatchesKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("analyzing: %w", New(PathNotFound, "/nope", "root", nil))
	if !errors.Is(err, ErrPathNotFound) {
		t.Error("expected wrapped error to match ErrPathNotFound")
	}
	if errors.Is(err, ErrCacheError) {
		t.Error("did not expect match on ErrCacheError")
	}
	if got := KindOf(err); got != PathNotFound {
		t.Errorf("KindOf = %q, want %q", got, PathNotFound)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestWrapClassifiesFSErrors(t *testing.T) {
	t.Parallel()

	notExist := &fs.PathError{Op: "stat", Path: "/x", Err: fs.ErrNotExist}
	if got := Wrap(AnalysisFailed, "/x", notExist).Kind; got != PathNotFound {
		t.Errorf("not-exist kind = %q, want %q", got, PathNotFound)
	}
	perm := &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}
	if got := Wrap(AnalysisFailed, "/x", perm).Kind; got != PermissionDenied {
		t.Errorf("permission kind = %q, want %q", got, PermissionDenied)
	}
	if got := Wrap(IndexingFailed, "/x", errors.New("other")).Kind; got != IndexingFailed {
		t.Errorf("fallback kind = %q, want %q", got, IndexingFailed)
	}

	wrapped := Wrap(AnalysisFailed, "/x", notExist)
	if !errors.Is(wrapped, fs.ErrNotExist) {
		t.Error("Wrap should preserve the cause chain")
	}
}

func TestRecoverable(t *testing.T) {
	t.Parallel()

	if !Recoverable(New(RepositoryAnalysisFailed, "", "git", nil)) {
		t.Error("repository failures must be recoverable")
	}
	if Recoverable(New(PathNotFound, "/root", "", nil)) {
		t.Error("missing root must not be recoverable")
	}
}
