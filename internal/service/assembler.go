package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/raglinehq/ragline/internal/domain"
)

// Assembler builds the bounded prompt context for one run. Fragments are
// packed greedily in priority order: recent conversation turns first, then
// retrieved documents in rank order. The system instruction is reserved
// separately and never counts against the budget. Sizes are measured in
// characters (runes), one unit per character; the budget is not a
// model-token count.
type Assembler struct {
	budget        int
	historyWindow int
	topN          int
}

func NewAssembler(budget, historyWindow, topN int) *Assembler {
	return &Assembler{
		budget:        budget,
		historyWindow: historyWindow,
		topN:          topN,
	}
}

// Assemble produces a context for the given inputs. The output is fully
// determined by the inputs: same history, same documents, same budget,
// same context. Fragments are included whole or not at all; packing stops
// at the first fragment that does not fit.
func (a *Assembler) Assemble(systemPrompt string, history []domain.ConversationTurn, docs []domain.ScoredCandidate) (*domain.AssembledContext, error) {
	ac := &domain.AssembledContext{
		System:    systemPrompt,
		Fragments: []domain.Fragment{},
	}
	remaining := a.budget

	// Walk history newest to oldest so the most recent turns win when the
	// budget is tight, then restore chronological order.
	recent := history
	if a.historyWindow > 0 && len(recent) > a.historyWindow {
		recent = recent[len(recent)-a.historyWindow:]
	}
	var kept []domain.Fragment
	for i := len(recent) - 1; i >= 0; i-- {
		turn := recent[i]
		size := utf8.RuneCountInString(turn.Content)
		if size > remaining {
			break
		}
		kept = append(kept, domain.Fragment{
			Kind: domain.FragmentKindHistory,
			Role: turn.Role,
			Ref:  turn.TurnID,
			Text: turn.Content,
		})
		remaining -= size
	}
	for i := len(kept) - 1; i >= 0; i-- {
		ac.Fragments = append(ac.Fragments, kept[i])
	}

	// Each document is capped at budget/topN before consideration so one
	// long document cannot crowd out the rest.
	docCap := 0
	if a.topN > 0 {
		docCap = a.budget / a.topN
	}
	for _, cand := range docs {
		text := renderDocument(cand.Document)
		if docCap > 0 {
			text = truncateChars(text, docCap)
		}
		size := utf8.RuneCountInString(text)
		if size > remaining {
			break
		}
		ac.Fragments = append(ac.Fragments, domain.Fragment{
			Kind: domain.FragmentKindDocument,
			Ref:  cand.Document.ID,
			Text: text,
		})
		remaining -= size
	}

	ac.TotalSize = a.budget - remaining
	if ac.TotalSize > a.budget {
		return nil, fmt.Errorf("assembled %d chars against budget %d: %w", ac.TotalSize, a.budget, domain.ErrContextBudgetViolation)
	}
	return ac, nil
}

// renderDocument flattens a document into one context excerpt.
func renderDocument(doc domain.Document) string {
	var b strings.Builder
	b.WriteString(doc.Title)
	if doc.Source != "" {
		b.WriteString(" [")
		b.WriteString(doc.Source)
		b.WriteString("]")
	}
	b.WriteString("\n")
	b.WriteString(doc.Content)
	return b.String()
}

// truncateChars cuts text to at most max characters, counting runes.
func truncateChars(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max])
}
