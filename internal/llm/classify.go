package llm

import "strings"

// ClassifyResponse scans the classifier's response text for the configured
// abnormal-indicator keywords. Matching is case-insensitive substring
// matching, not whole-word, and no semantic parsing is attempted.
//
// The verdict is abnormal iff at least one keyword was found. Matches are
// reported in configured order, not order of appearance. Any input,
// including the empty string, resolves without failing; ambiguity resolves
// to "no match".
func ClassifyResponse(text string, keywords []string) (isAbnormal bool, matched []string) {
	if text == "" {
		return false, nil
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return len(matched) > 0, matched
}
