package models

import (
	"fmt"
)

// VersionTransition represents a status transition of a prompt version
type VersionTransition struct {
	From VersionStatus
	To   VersionStatus
}

// validTransitions defines the allowed status transitions for prompt versions
var validTransitions = map[VersionTransition]bool{
	// From draft
	{VersionStatusDraft, VersionStatusEvaluated}: true,
	{VersionStatusDraft, VersionStatusDeployed}:  true, // manual versions
	{VersionStatusDraft, VersionStatusArchived}:  true,

	// From evaluated
	{VersionStatusEvaluated, VersionStatusDeployed}: true,
	{VersionStatusEvaluated, VersionStatusArchived}: true,

	// From deployed
	{VersionStatusDeployed, VersionStatusArchived}: true,

	// Archived is terminal; only a rollback restores it (see ValidateRestore)
}

// ValidateTransition checks if a status transition is valid and returns an error if not
func ValidateTransition(from, to VersionStatus) error {
	if from == to {
		return nil
	}

	if !validTransitions[VersionTransition{From: from, To: to}] {
		return NewInvalidTransitionError(from, to)
	}

	return nil
}

// ValidateRestore checks that a version may be brought back by a rollback
func ValidateRestore(from VersionStatus) error {
	if from != VersionStatusArchived {
		return &InvalidTransitionError{
			From:    from,
			To:      VersionStatusDeployed,
			Message: fmt.Sprintf("only archived versions can be restored (status '%s')", from),
		}
	}
	return nil
}

// IsValidTransition checks if a transition between two statuses is valid
func IsValidTransition(from, to VersionStatus) bool {
	return ValidateTransition(from, to) == nil
}

// InvalidTransitionError represents an error for invalid status transitions
type InvalidTransitionError struct {
	From    VersionStatus
	To      VersionStatus
	Message string
}

func (e *InvalidTransitionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("invalid version status transition from '%s' to '%s'", e.From, e.To)
}

// NewInvalidTransitionError creates a new InvalidTransitionError with a descriptive message
func NewInvalidTransitionError(from, to VersionStatus) *InvalidTransitionError {
	return &InvalidTransitionError{
		From:    from,
		To:      to,
		Message: generateTransitionErrorMessage(from, to),
	}
}

func generateTransitionErrorMessage(from, to VersionStatus) string {
	switch from {
	case VersionStatusArchived:
		return "cannot transition from archived: archived versions are only restored by rollback"
	case VersionStatusDeployed:
		return fmt.Sprintf("cannot transition deployed version to '%s': deploy another version or roll back", to)
	default:
		return fmt.Sprintf("invalid transition from '%s' to '%s'", from, to)
	}
}

// CanDeploy checks if a version can be deployed from its current status
func CanDeploy(status VersionStatus) bool {
	return IsValidTransition(status, VersionStatusDeployed)
}

// CanArchive checks if a version can be archived from its current status
func CanArchive(status VersionStatus) bool {
	return IsValidTransition(status, VersionStatusArchived)
}
