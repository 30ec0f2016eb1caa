// Package tokencount implements the Token Counter (C2): an estimate of how
// many tokens a text blob costs a given model family, used by the Log
// Compressor (C3) to size its output and by external Provider callers (out
// of scope here) to budget prompts. Grounded on the source engine's
// per-provider dispatch in llm_client.go, generalized from "which HTTP API
// to call" to "which estimator to run."
package tokencount

import (
	"unicode"

	"github.com/wardenci/warden/internal/errs"
)

// ModelFamily names a tokenizer family. Exact byte-pair tokenization is out
// of scope (Provider transport is opaque per spec §6.5); each family gets a
// deterministic, monotonic heuristic instead.
type ModelFamily string

const (
	FamilyGPT    ModelFamily = "gpt"
	FamilyClaude ModelFamily = "claude"
	FamilyGemini ModelFamily = "gemini"
)

type estimator func(text string) uint32

// Counter estimates token counts per model family.
type Counter struct {
	estimators map[ModelFamily]estimator
}

// New builds a Counter with the built-in family estimators registered.
// Registration happens here, explicitly, at construction time rather than
// via package-level side effects (Design Notes §9).
func New() *Counter {
	return &Counter{
		estimators: map[ModelFamily]estimator{
			FamilyGPT:    estimateByteDense,
			FamilyClaude: estimateWordish,
			FamilyGemini: estimateWordish,
		},
	}
}

// Count estimates the token count of text for the given family. An
// unregistered family yields a KindValidation error.
func (c *Counter) Count(text string, family ModelFamily) (uint32, error) {
	est, ok := c.estimators[family]
	if !ok {
		return 0, errs.New(errs.KindValidation, "unknown model family: "+string(family))
	}
	return est(text), nil
}

// estimateByteDense approximates GPT-style BPE tokenization: roughly four
// bytes per token, with a floor of one token for any non-empty text.
func estimateByteDense(text string) uint32 {
	if text == "" {
		return 0
	}
	n := uint32(len(text)) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// estimateWordish approximates tokenizers that roughly split on word and
// punctuation boundaries: one token per run of letters/digits, one per
// punctuation rune.
func estimateWordish(text string) uint32 {
	var count uint32
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !inWord {
				count++
				inWord = true
			}
		default:
			inWord = false
			count++
		}
	}
	return count
}
