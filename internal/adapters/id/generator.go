package id

import (
	"strconv"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ID prefixes
const (
	PrefixFeedback      = "fb"
	PrefixPromptVersion = "pv"
	PrefixTrainingRun   = "tr"
	PrefixEvaluation    = "ev"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

type Generator struct {
	fallback atomic.Uint64
}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) generate(prefix string) string {
	id, err := gonanoid.Generate(alphabet, 20)
	if err != nil {
		// crypto/rand failure; stay unique within the process
		n := g.fallback.Add(1)
		return prefix + "_" + strconv.FormatInt(time.Now().UnixNano(), 36) + strconv.FormatUint(n, 36)
	}
	return prefix + "_" + id
}

func (g *Generator) GenerateFeedbackID() string {
	return g.generate(PrefixFeedback)
}

func (g *Generator) GeneratePromptVersionID() string {
	return g.generate(PrefixPromptVersion)
}

func (g *Generator) GenerateTrainingRunID() string {
	return g.generate(PrefixTrainingRun)
}

func (g *Generator) GenerateEvaluationID() string {
	return g.generate(PrefixEvaluation)
}
