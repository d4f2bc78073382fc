// Package services holds the business logic for quota accounting, task
// processing, synchronous transcription, accounts, and transcript history.
// This file centralizes service-level error values so that callers can match
// them with errors.Is; translation into HTTP status codes happens in the
// handler layer.
package services

import "errors"

// Task and transcription errors.
var (
	// ErrTaskNotFound indicates that the requested task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskForbidden is returned when a task exists but belongs to a
	// different user.
	ErrTaskForbidden = errors.New("task belongs to another user")

	// ErrTaskFinalized is returned when processing is requested for a task
	// that already reached a terminal state.
	ErrTaskFinalized = errors.New("task already finalized")

	// ErrQuotaExceeded is returned when the audio is longer than the user's
	// remaining minutes.
	ErrQuotaExceeded = errors.New("usage quota exceeded")

	// ErrUpstream wraps failures of the audio fetch or the external engine.
	ErrUpstream = errors.New("transcription processing failed")

	// ErrMissingAudio is returned when no audio URL was supplied.
	ErrMissingAudio = errors.New("audio url is required")
)

// Transcript history errors.
var (
	// ErrTranscriptNotFound indicates that the transcript does not exist or
	// is not owned by the caller.
	ErrTranscriptNotFound = errors.New("transcript not found")

	// ErrEmptyQuery is returned when a search query is blank.
	ErrEmptyQuery = errors.New("search query is required")
)

// Account errors.
var (
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidEmail is returned for an empty or malformed email address.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrWeakPassword is returned when a password is shorter than the minimum.
	ErrWeakPassword = errors.New("password must be at least 8 characters")

	// ErrInvalidCredentials is returned by login for an unknown email or a
	// wrong password; the two cases are not distinguished.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrWrongPassword is returned when the current password supplied to a
	// password change does not match.
	ErrWrongPassword = errors.New("current password is incorrect")

	// ErrUserNotFound indicates that the user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Messages stored on failed tasks. They are shown to users, so they never
// carry internal details.
const (
	msgProcessingFailed = "transcription processing failed"
	msgQuotaExceeded    = "usage quota exceeded"
)
