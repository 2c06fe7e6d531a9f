package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// VersionStatus is the lifecycle status of a prompt version
type VersionStatus string

// Version status values
const (
	VersionStatusDraft     VersionStatus = "draft"
	VersionStatusEvaluated VersionStatus = "evaluated"
	VersionStatusDeployed  VersionStatus = "deployed"
	VersionStatusArchived  VersionStatus = "archived"
)

// ProducedByManual tags versions created by an operator
const ProducedByManual = "manual"

// PromptVersion is one entry of a prompt's append-only version history.
// Only Status and its timestamps are mutated after creation.
type PromptVersion struct {
	ID                 string        `json:"id"`
	PromptID           string        `json:"prompt_id"`
	VersionNumber      int           `json:"version_number"`
	Text               string        `json:"text"`
	Hash               string        `json:"hash"`
	ProducedBy         string        `json:"produced_by"` // approach tag or "manual"
	Status             VersionStatus `json:"status"`
	StatusReason       string        `json:"status_reason,omitempty"`
	PreviousDeployedID string        `json:"previous_deployed_id,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	EvaluatedAt        *time.Time    `json:"evaluated_at,omitempty"`
	DeployedAt         *time.Time    `json:"deployed_at,omitempty"`
	ArchivedAt         *time.Time    `json:"archived_at,omitempty"`
}

// NewPromptVersion creates a draft version. The version number is assigned by the repository.
func NewPromptVersion(id, promptID, text, producedBy string, now time.Time) *PromptVersion {
	return &PromptVersion{
		ID:         id,
		PromptID:   promptID,
		Text:       text,
		Hash:       HashPrompt(text),
		ProducedBy: producedBy,
		Status:     VersionStatusDraft,
		CreatedAt:  now.UTC(),
	}
}

// HashPrompt computes the SHA256 hash of prompt text as a hex string
func HashPrompt(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// IsDeployed reports whether the version is the active one
func (v *PromptVersion) IsDeployed() bool {
	return v.Status == VersionStatusDeployed
}

// MarkEvaluated advances a draft to evaluated
func (v *PromptVersion) MarkEvaluated(now time.Time) error {
	if err := ValidateTransition(v.Status, VersionStatusEvaluated); err != nil {
		return err
	}
	t := now.UTC()
	v.Status = VersionStatusEvaluated
	v.EvaluatedAt = &t
	return nil
}

// MarkDeployed makes the version active, remembering the version it replaced
func (v *PromptVersion) MarkDeployed(previousID string, now time.Time) error {
	if err := ValidateTransition(v.Status, VersionStatusDeployed); err != nil {
		return err
	}
	t := now.UTC()
	v.Status = VersionStatusDeployed
	v.DeployedAt = &t
	v.PreviousDeployedID = previousID
	v.StatusReason = ""
	return nil
}

// MarkArchived archives the version with an optional reason
func (v *PromptVersion) MarkArchived(reason string, now time.Time) error {
	if err := ValidateTransition(v.Status, VersionStatusArchived); err != nil {
		return err
	}
	t := now.UTC()
	v.Status = VersionStatusArchived
	v.ArchivedAt = &t
	v.StatusReason = reason
	return nil
}

// Restore brings an archived version back as deployed during a rollback.
// The restored version has no rollback target of its own.
func (v *PromptVersion) Restore(now time.Time) error {
	if err := ValidateRestore(v.Status); err != nil {
		return err
	}
	t := now.UTC()
	v.Status = VersionStatusDeployed
	v.DeployedAt = &t
	v.ArchivedAt = nil
	v.PreviousDeployedID = ""
	v.StatusReason = "restored by rollback"
	return nil
}

// ExportedPrompt is the deployed text and metadata handed to the serving layer
type ExportedPrompt struct {
	PromptID      string    `json:"prompt_id" yaml:"prompt_id"`
	VersionID     string    `json:"version_id" yaml:"version_id"`
	VersionNumber int       `json:"version_number" yaml:"version_number"`
	Text          string    `json:"text" yaml:"-"`
	Hash          string    `json:"hash" yaml:"hash"`
	ProducedBy    string    `json:"produced_by" yaml:"produced_by"`
	DeployedAt    time.Time `json:"deployed_at" yaml:"deployed_at"`
}

// NewExportedPrompt builds the export view of a deployed version
func NewExportedPrompt(v *PromptVersion) *ExportedPrompt {
	e := &ExportedPrompt{
		PromptID:      v.PromptID,
		VersionID:     v.ID,
		VersionNumber: v.VersionNumber,
		Text:          v.Text,
		Hash:          v.Hash,
		ProducedBy:    v.ProducedBy,
	}
	if v.DeployedAt != nil {
		e.DeployedAt = *v.DeployedAt
	}
	return e
}
