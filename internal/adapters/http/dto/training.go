package dto

import "github.com/longregen/promptforge/internal/domain/models"

// TrainRequest optionally overrides approach selection
type TrainRequest struct {
	Approach models.Approach `json:"approach,omitempty"`
}

type TrainingHistoryResponse struct {
	PromptID string                `json:"prompt_id"`
	Runs     []*models.TrainingRun `json:"runs"`
	Total    int                   `json:"total"`
}
