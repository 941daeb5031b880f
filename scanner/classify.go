package scanner

import (
	"strings"
	"unicode/utf8"

	"github.com/teranos/logtap/engine"
	"github.com/teranos/logtap/scanner/protocol"
)

// TruncationMarker is appended to previews cut short
const TruncationMarker = "..."

// Preview trims text and cuts it to limit characters, marking the cut
func Preview(text string, limit int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + TruncationMarker
}

// isEmptyResult reports output that carries no match: blank text or an
// empty collection literal
func isEmptyResult(trimmed string) bool {
	switch trimmed {
	case "", "[]", "{}":
		return true
	default:
		return false
	}
}

// classify turns one engine result into a hit, an error, or nothing
func classify(rule Rule, res engine.BatchItemResult, previewLimit int) (*protocol.Hit, *protocol.RuleError) {
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, &protocol.RuleError{RuleName: rule.Name, Message: msg}
	}

	// HasData is advisory; the trimmed text decides
	trimmed := strings.TrimSpace(res.Data)
	if isEmptyResult(trimmed) {
		return nil, nil
	}
	return &protocol.Hit{
		RuleName:      rule.Name,
		Query:         rule.Query,
		ResultPreview: Preview(trimmed, previewLimit),
	}, nil
}

// classifyBatch correlates results to rules by index and keeps rule order.
// base is the index of the batch's first rule.
func classifyBatch(batch []Rule, base int, results []engine.BatchItemResult, previewLimit int) protocol.BatchResults {
	byIndex := make(map[int]engine.BatchItemResult, len(results))
	for _, r := range results {
		byIndex[r.Index] = r
	}

	out := protocol.BatchResults{Hits: []protocol.Hit{}, Errors: []protocol.RuleError{}}
	for i, rule := range batch {
		res, ok := byIndex[base+i]
		if !ok {
			out.Errors = append(out.Errors, protocol.RuleError{RuleName: rule.Name, Message: "No result returned for rule"})
			continue
		}
		hit, ruleErr := classify(rule, res, previewLimit)
		if hit != nil {
			out.Hits = append(out.Hits, *hit)
		}
		if ruleErr != nil {
			out.Errors = append(out.Errors, *ruleErr)
		}
	}
	return out
}

// failBatch reports every rule of a batch with the same message
func failBatch(batch []Rule, message string) protocol.BatchResults {
	out := protocol.BatchResults{Hits: []protocol.Hit{}, Errors: make([]protocol.RuleError, len(batch))}
	for i, rule := range batch {
		out.Errors[i] = protocol.RuleError{RuleName: rule.Name, Message: message}
	}
	return out
}
