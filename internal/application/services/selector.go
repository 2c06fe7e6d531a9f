package services

import "github.com/longregen/promptforge/internal/domain/models"

// Thresholds configure approach selection
type Thresholds struct {
	ErrorThreshold      float64
	RatingThreshold     float64
	SuggestionThreshold int
	VolumeThreshold     int
}

// DefaultThresholds returns the default selection thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		ErrorThreshold:      0.20,
		RatingThreshold:     0.60,
		SuggestionThreshold: 3,
		VolumeThreshold:     50,
	}
}

// SelectApproach maps feedback statistics to a training approach.
// The first matching rule wins: errors, then low ratings, then suggestions, then volume.
func SelectApproach(stats *models.FeedbackSummary, t Thresholds) models.Approach {
	switch {
	case stats == nil:
		return models.ApproachNone
	case stats.ErrorRate > t.ErrorThreshold:
		return models.ApproachAdversarial
	case stats.MeanRating < t.RatingThreshold:
		return models.ApproachReinforcement
	case stats.SuggestionCount >= t.SuggestionThreshold:
		return models.ApproachMetaPrompt
	case stats.SuccessVolume >= t.VolumeThreshold:
		return models.ApproachFewShot
	default:
		return models.ApproachNone
	}
}
