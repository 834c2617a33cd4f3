// Package services defines the business logic for learning sessions, answers,
// comic progress, and feedback. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

// Session-related errors.
var (
	// ErrSessionNotFound indicates that the requested session does not exist
	// or is not accessible to the current learner.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyMessage is returned when a conversational turn carries no text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a message or answer exceeds the maximum
	// configured length limit.
	ErrTooLong = errors.New("text too long")

	// ErrUnknownActivity is returned when an activity id does not name a node
	// in the learning flow.
	ErrUnknownActivity = errors.New("unknown activity")

	// ErrInvalidStatus is returned when a session status signal is outside
	// {active, paused, completed}, or would revert a completed session.
	ErrInvalidStatus = errors.New("invalid session status")

	// ErrEmptyQuestion is returned when the open question-answering path
	// receives a blank question.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrEmptyAnswer is returned when an answer submission carries no text.
	ErrEmptyAnswer = errors.New("answer is empty")

	// ErrInvalidAnswerType is returned when the answer kind is outside the
	// allowed set.
	ErrInvalidAnswerType = errors.New("invalid answer type")
)

// Comic and feedback errors.
var (
	// ErrComicBelowThreshold is returned when a learner tries to finish an
	// episode before reaching the minimum page threshold.
	ErrComicBelowThreshold = errors.New("not enough pages read to finish episode")

	// ErrEmptyFeedback is returned when a feedback submission has no message.
	ErrEmptyFeedback = errors.New("feedback message is empty")
)
