package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
)

// MaxDetailLength caps freeform feedback detail
const MaxDetailLength = 16 * 1024

// ValidatePromptID checks that a prompt ID is present and reasonably sized
func ValidatePromptID(promptID string) error {
	if promptID == "" {
		return domain.Validation("prompt ID cannot be empty")
	}
	if len(promptID) > 200 {
		return domain.Validation(fmt.Sprintf("prompt ID must be at most 200 characters (got %d)", len(promptID)))
	}
	return nil
}

// ValidateRequired checks that a required string field is not blank
func ValidateRequired(value string, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return domain.Validation(fieldName + " is required")
	}
	return nil
}

// ValidatePositive checks that a number is positive
func ValidatePositive(value int, fieldName string) error {
	if value <= 0 {
		return domain.Validation(fieldName + " must be positive")
	}
	return nil
}

// ValidateStringLength checks that a string's length is within the specified range
func ValidateStringLength(value string, fieldName string, minLen, maxLen int) error {
	length := len(value)
	if minLen > 0 && length < minLen {
		return domain.Validation(fmt.Sprintf("%s must be at least %d characters (got %d)", fieldName, minLen, length))
	}
	if maxLen > 0 && length > maxLen {
		return domain.Validation(fmt.Sprintf("%s must be at most %d characters (got %d)", fieldName, maxLen, length))
	}
	return nil
}

// ValidateRating checks that a rating lies in [0,1]
func ValidateRating(value float64) error {
	if math.IsNaN(value) || value < 0 || value > 1 {
		return domain.Validation(fmt.Sprintf("rating must be within [0,1] (got %g)", value))
	}
	return nil
}

// ValidateFeedbackKind checks that the kind is one of the recognized feedback kinds
func ValidateFeedbackKind(kind models.FeedbackKind) error {
	if !kind.Valid() {
		return domain.Validation(fmt.Sprintf("unrecognized feedback kind %q", kind))
	}
	return nil
}

// ValidateApproach checks that an approach is trainable
func ValidateApproach(approach models.Approach) error {
	if !approach.Valid() {
		return domain.Validation(fmt.Sprintf("unknown training approach %q", approach))
	}
	return nil
}

// ValidateIssueType checks an issue report type
func ValidateIssueType(issueType string) error {
	switch issueType {
	case models.IssueIncorrect, models.IssueUnclear, models.IssueIncomplete,
		models.IssueInappropriate, models.IssueOther:
		return nil
	}
	return domain.Validation(fmt.Sprintf("unknown issue type %q", issueType))
}
