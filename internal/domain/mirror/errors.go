package mirror

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures
type Kind int

const (
	// InvalidRequest means the submitted URL cannot be mirrored
	InvalidRequest Kind = iota + 1
	// CrawlFailure covers fetch and crawl errors
	CrawlFailure
	// FilesystemFailure covers working directory and HTML rewrite errors
	FilesystemFailure
	// ArchiveFailure covers ZIP construction and delivery errors
	ArchiveFailure
)

func (k Kind) String() string {
	switch k {
	case InvalidRequest:
		return "invalid_request"
	case CrawlFailure:
		return "crawl_failure"
	case FilesystemFailure:
		return "filesystem_failure"
	case ArchiveFailure:
		return "archive_failure"
	default:
		return "unknown"
	}
}

// Error is returned by every failing pipeline stage.
type Error struct {
	Kind  Kind
	Stage State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the client-facing description of the failure.
func (e *Error) Message() string {
	if e.Kind == InvalidRequest {
		return fmt.Sprintf("invalid request: %v", e.Err)
	}
	return fmt.Sprintf("download failed: %v", e.Err)
}

func fail(kind Kind, stage State, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// KindOf extracts the failure kind from err, or 0 when err is not a pipeline error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
