package dto

import "github.com/longregen/promptforge/internal/domain/models"

type CreateVersionRequest struct {
	Text string `json:"text"`
}

type VersionListResponse struct {
	PromptID string                  `json:"prompt_id"`
	Versions []*models.PromptVersion `json:"versions"`
	Total    int                     `json:"total"`
}

type PromptListResponse struct {
	Prompts []string `json:"prompts"`
	Total   int      `json:"total"`
}
