package models

import (
	"testing"
	"time"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name        string
		from        VersionStatus
		to          VersionStatus
		shouldError bool
	}{
		// Forward transitions
		{name: "draft to evaluated", from: VersionStatusDraft, to: VersionStatusEvaluated},
		{name: "draft to deployed", from: VersionStatusDraft, to: VersionStatusDeployed},
		{name: "draft to archived", from: VersionStatusDraft, to: VersionStatusArchived},
		{name: "evaluated to deployed", from: VersionStatusEvaluated, to: VersionStatusDeployed},
		{name: "evaluated to archived", from: VersionStatusEvaluated, to: VersionStatusArchived},
		{name: "deployed to archived", from: VersionStatusDeployed, to: VersionStatusArchived},

		// Archived is terminal
		{name: "archived to deployed", from: VersionStatusArchived, to: VersionStatusDeployed, shouldError: true},
		{name: "archived to draft", from: VersionStatusArchived, to: VersionStatusDraft, shouldError: true},

		// Backwards
		{name: "evaluated to draft", from: VersionStatusEvaluated, to: VersionStatusDraft, shouldError: true},
		{name: "deployed to evaluated", from: VersionStatusDeployed, to: VersionStatusEvaluated, shouldError: true},

		// No-op
		{name: "deployed to deployed", from: VersionStatusDeployed, to: VersionStatusDeployed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.shouldError && err == nil {
				t.Errorf("expected error for transition %s -> %s, got nil", tt.from, tt.to)
			}
			if !tt.shouldError && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestPromptVersion_Lifecycle(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v := NewPromptVersion("pv_1", "greeting", "Hello there", string(ApproachFewShot), now)

	if v.Status != VersionStatusDraft {
		t.Fatalf("expected draft, got %s", v.Status)
	}
	if v.Hash != HashPrompt("Hello there") {
		t.Errorf("hash not computed from text")
	}

	if err := v.MarkEvaluated(now); err != nil {
		t.Fatalf("MarkEvaluated failed: %v", err)
	}
	if err := v.MarkDeployed("pv_0", now); err != nil {
		t.Fatalf("MarkDeployed failed: %v", err)
	}
	if v.PreviousDeployedID != "pv_0" {
		t.Errorf("expected previous deployed pv_0, got %q", v.PreviousDeployedID)
	}

	if err := v.MarkArchived("superseded", now); err != nil {
		t.Fatalf("MarkArchived failed: %v", err)
	}
	if err := v.MarkEvaluated(now); err == nil {
		t.Error("expected archived version to reject evaluation")
	}

	if err := v.Restore(now); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if v.Status != VersionStatusDeployed || v.PreviousDeployedID != "" {
		t.Errorf("restore should deploy with no rollback target, got %s/%q", v.Status, v.PreviousDeployedID)
	}
	if err := v.Restore(now); err == nil {
		t.Error("expected restore of a deployed version to fail")
	}
}
