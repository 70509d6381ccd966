package scan

// ShouldClassify decides whether a classification call is warranted. Pure
// function: fires iff the match count has reached the threshold, no
// classification has happened yet for this session, and the LLM feature is
// enabled.
//
// The alreadyClassified latch makes the gate fire at most once per session
// even as the count keeps climbing past the threshold. The enabled check
// short-circuits before any summarization work is done.
func ShouldClassify(count, threshold int, alreadyClassified, enabled bool) bool {
	if !enabled || alreadyClassified {
		return false
	}
	return count >= threshold
}
