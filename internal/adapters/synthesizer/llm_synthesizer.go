// Package synthesizer proposes candidate prompt text with an LLM.
package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/logging"
	"github.com/longregen/promptforge/internal/ports"
)

// Completer is the chat call the synthesizer needs
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const systemPrompt = `You improve system prompts for an AI assistant using evidence about how the
current prompt performs in production. Keep the intent of the current prompt. Return only the
complete text of the improved prompt, with no commentary and no surrounding quotes.`

var approachInstructions = map[models.Approach]string{
	models.ApproachFewShot: "Users are happy with these responses. Preserve the behavior they praise " +
		"and weave the strongest examples into the prompt as demonstrations.",
	models.ApproachReinforcement: "Strengthen the behavior behind the positive examples and remove " +
		"whatever produced the negative ones.",
	models.ApproachMetaPrompt: "Rewrite the prompt so that it addresses the user suggestions below.",
	models.ApproachAdversarial: "The prompt is failing. Make it robust against the errors below and " +
		"against the listed edge cases.",
}

// LLMSynthesizer implements ports.Synthesizer
type LLMSynthesizer struct {
	llm    Completer
	logger *zap.Logger
}

var _ ports.Synthesizer = (*LLMSynthesizer)(nil)

func NewLLMSynthesizer(llm Completer, logger *zap.Logger) *LLMSynthesizer {
	return &LLMSynthesizer{llm: llm, logger: logging.OrNop(logger)}
}

// Synthesize asks the LLM for one candidate. It never retries; the caller owns the timeout.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, req *ports.SynthesisRequest) (string, error) {
	if req == nil || req.Context == nil {
		return "", errors.New("synthesis request has no context")
	}

	user := BuildUserMessage(req)
	s.logger.Debug("requesting candidate",
		zap.String("prompt_id", req.PromptID),
		zap.String("approach", string(req.Approach)),
		zap.Int("evidence", req.Context.Size()))

	out, err := s.llm.Complete(ctx, systemPrompt, user)
	if err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	return cleanCandidate(out), nil
}

// BuildUserMessage renders the baseline and the approach's context bundle
func BuildUserMessage(req *ports.SynthesisRequest) string {
	var b strings.Builder
	b.WriteString("## Current prompt\n")
	b.WriteString(req.BaselineText)
	b.WriteString("\n\n## Task\n")
	b.WriteString(approachInstructions[req.Approach])
	b.WriteString("\n")

	bundle := req.Context
	writeExamples(&b, "Successful responses", bundle.Examples)
	writeExamples(&b, "Positive examples", bundle.Positive)
	writeExamples(&b, "Negative examples", bundle.Negative)
	writeList(&b, "User suggestions", bundle.Suggestions)
	writeList(&b, "Observed errors", bundle.ErrorExcerpts)
	writeList(&b, "Edge cases", bundle.EdgeCaseSeeds)
	writeList(&b, "Earlier versions (do not repeat them)", bundle.PriorVersions)

	return b.String()
}

func writeExamples(b *strings.Builder, title string, examples []models.TrainingExample) {
	if len(examples) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n", title)
	for _, ex := range examples {
		if ex.Rating != nil {
			fmt.Fprintf(b, "- (rated %.2f) %s\n", *ex.Rating, ex.Text)
		} else {
			fmt.Fprintf(b, "- %s\n", ex.Text)
		}
	}
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

// cleanCandidate strips a markdown fence the model may wrap its answer in
func cleanCandidate(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
