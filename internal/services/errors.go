// Package services defines the business logic for chains, missions, and
// recaps. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer. Collaborator failures (recap
// generator, notification sink, bridge matcher) deliberately have no
// sentinel here: they are absorbed inside the services and degrade
// gracefully instead of surfacing to callers.
package services

import "errors"

var (
	// ErrChainNotFound indicates that the requested chain does not exist.
	ErrChainNotFound = errors.New("chain not found")

	// ErrMissionNotFound indicates that the requested mission does not exist.
	ErrMissionNotFound = errors.New("mission not found")

	// ErrNotMember is returned when a user submits to a mission of a chain
	// they have not joined.
	ErrNotMember = errors.New("user is not a member of this chain")

	// ErrInvalidStateTransition is returned when an operation is requested
	// while the mission is not in an eligible state (e.g., archiving a
	// mission that is still fusing). No mutation occurs.
	ErrInvalidStateTransition = errors.New("mission state does not permit this operation")

	// ErrMissionLocked is returned when a submission arrives after the
	// capture window closed (mission already fusing, recapped, or archived).
	ErrMissionLocked = errors.New("mission is no longer accepting entries")

	// ErrNoEntries is returned when a recap is requested for a mission with
	// zero entries.
	ErrNoEntries = errors.New("mission has no entries")

	// ErrEmptyMedia is returned when a submission carries no media reference.
	ErrEmptyMedia = errors.New("media reference is empty")

	// ErrInvalidRequired is returned when a mission is created with a
	// non-positive submission target.
	ErrInvalidRequired = errors.New("submissions_required must be positive")
)
