// Package crawlerr defines the typed error kinds shared across the
// crawl-and-index core, matching the teacher's per-package sentinel-error
// style (e.g. sqlite.ErrJobNotFound) rather than raw string matching.
package crawlerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error returned by the crawl-and-index core so callers
// can branch on it with errors.Is without parsing messages.
type Kind int

const (
	// KindInvalidArgument marks a malformed caller input (bad limit, nil handle).
	KindInvalidArgument Kind = iota
	// KindInvalidURL marks an archive URL that failed hostname/scheme validation.
	KindInvalidURL
	// KindNotFound marks a lookup against an entity that does not exist.
	KindNotFound
	// KindValidationFailed marks a record that failed schema/struct validation.
	KindValidationFailed
	// KindArchiveUnreadable marks an archive I/O failure; aborts the single
	// dataset ingest in progress, never the whole crawl.
	KindArchiveUnreadable
	// KindUniqueConstraint marks a uniqueness violation at the store layer.
	KindUniqueConstraint
	// KindMigrationFailed marks a non-tolerant migration step that errored.
	KindMigrationFailed
	// KindTimeout marks an operation that exceeded its deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidURL:
		return "invalid_url"
	case KindNotFound:
		return "not_found"
	case KindValidationFailed:
		return "validation_failed"
	case KindArchiveUnreadable:
		return "archive_unreadable"
	case KindUniqueConstraint:
		return "unique_constraint"
	case KindMigrationFailed:
		return "migration_failed"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a typed error carrying a Kind alongside the usual message/cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, crawlerr.InvalidArgument) style comparisons by
// matching on Kind regardless of Message/Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind, preserving cause for Unwrap.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Sentinel kind markers usable with errors.Is(err, crawlerr.InvalidArgument).
var (
	InvalidArgument   = &Error{Kind: KindInvalidArgument}
	InvalidURL        = &Error{Kind: KindInvalidURL}
	NotFound          = &Error{Kind: KindNotFound}
	ValidationFailed  = &Error{Kind: KindValidationFailed}
	ArchiveUnreadable = &Error{Kind: KindArchiveUnreadable}
	UniqueConstraint  = &Error{Kind: KindUniqueConstraint}
	MigrationFailed   = &Error{Kind: KindMigrationFailed}
	Timeout           = &Error{Kind: KindTimeout}
)

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, and reports whether one was found.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
