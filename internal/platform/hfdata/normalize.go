package hfdata

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
)

var trueFalseChoices = []string{"TRUE", "FALSE", "UNKNOWN"}

var mcqLetters = []string{"A", "B", "C", "D"}

// normalizeTrueFalse handles ProofWriter/RuleTaker rows: a theory/context,
// a hypothesis, and a label in one of several encodings.
func normalizeTrueFalse(row map[string]json.RawMessage, spec datasetSpec, offset int) (*Question, error) {
	theory := stringField(row, "theory", "context", "facts")
	hypothesis := stringField(row, "question", "hypothesis", "query")
	if theory == "" || hypothesis == "" {
		return nil, fmt.Errorf("row at offset %d is missing theory or hypothesis", offset)
	}

	prompt := fmt.Sprintf(`**Context (Facts and Rules):**
%s

**Hypothesis:**
%s

Based on the facts and rules provided, is the hypothesis TRUE, FALSE, or UNKNOWN?`, theory, hypothesis)

	return &Question{
		Prompt:        prompt,
		Choices:       trueFalseChoices,
		CorrectAnswer: truthLabel(row),
		Dataset:       spec.name,
		Config:        spec.config,
		Split:         spec.split,
		RowOffset:     offset,
	}, nil
}

// normalizeMCQ handles ReClor rows: passage, question, four answer options
// and a 0-3 label. Options are shuffled so the answer index leaks nothing,
// and the correct letter is re-derived from the shuffle.
func normalizeMCQ(row map[string]json.RawMessage, spec datasetSpec, offset int) (*Question, error) {
	passage := stringField(row, "context", "passage")
	question := stringField(row, "question")

	var options []string
	for _, field := range []string{"answers", "options"} {
		if raw, ok := row[field]; ok {
			if err := json.Unmarshal(raw, &options); err == nil && len(options) > 0 {
				break
			}
		}
	}
	if len(options) < len(mcqLetters) {
		return nil, fmt.Errorf("row at offset %d has %d answer options, want %d", offset, len(options), len(mcqLetters))
	}
	options = options[:len(mcqLetters)]

	label := intField(row, "label", "answer")
	if label < 0 || label >= len(options) {
		return nil, fmt.Errorf("row at offset %d has out-of-range label %d", offset, label)
	}

	order := rand.Perm(len(options))
	shuffled := make([]string, len(options))
	correct := ""
	for pos, orig := range order {
		shuffled[pos] = options[orig]
		if orig == label {
			correct = mcqLetters[pos]
		}
	}

	var optionLines []string
	for i, opt := range shuffled {
		optionLines = append(optionLines, fmt.Sprintf("%s) %s", mcqLetters[i], opt))
	}

	prompt := fmt.Sprintf(`**Passage:**
%s

**Question:**
%s

**Answer Options:**
%s

Select the best answer: A, B, C, or D`, passage, question, strings.Join(optionLines, "\n"))

	return &Question{
		Prompt:        prompt,
		Choices:       mcqLetters,
		CorrectAnswer: correct,
		Dataset:       spec.name,
		Config:        spec.config,
		Split:         spec.split,
		RowOffset:     offset,
	}, nil
}

// truthLabel maps the label field onto TRUE/FALSE/UNKNOWN. Labels show up
// as bools, ints (0/1/2) or strings depending on the dataset revision.
func truthLabel(row map[string]json.RawMessage) string {
	for _, field := range []string{"label", "answer"} {
		raw, ok := row[field]
		if !ok {
			continue
		}

		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			if b {
				return "TRUE"
			}
			return "FALSE"
		}

		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			switch n {
			case 0:
				return "FALSE"
			case 1:
				return "TRUE"
			}
			return "UNKNOWN"
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			switch strings.ToUpper(strings.TrimSpace(s)) {
			case "TRUE", "T":
				return "TRUE"
			case "FALSE", "F":
				return "FALSE"
			case "UNKNOWN", "U":
				return "UNKNOWN"
			}
		}
	}
	return "UNKNOWN"
}

func stringField(row map[string]json.RawMessage, fields ...string) string {
	for _, field := range fields {
		raw, ok := row[field]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

func intField(row map[string]json.RawMessage, fields ...string) int {
	for _, field := range fields {
		raw, ok := row[field]
		if !ok {
			continue
		}
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			return n
		}
	}
	return -1
}
