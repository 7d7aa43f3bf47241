package compaction

// TokenEstimator estimates token counts from a fixed characters-per-token
// ratio. Length is measured in bytes, matching len(text).
type TokenEstimator struct {
	charsPerToken int
}

// NewTokenEstimator creates a TokenEstimator. A non-positive ratio falls back
// to DefaultCharsPerToken.
func NewTokenEstimator(charsPerToken int) TokenEstimator {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return TokenEstimator{charsPerToken: charsPerToken}
}

// Estimate returns ceil(len(text) / charsPerToken).
func (e TokenEstimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + e.charsPerToken - 1) / e.charsPerToken
}

// CharBudget converts a token budget back into a character budget.
func (e TokenEstimator) CharBudget(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return tokens * e.charsPerToken
}

// CharsPerToken returns the configured ratio.
func (e TokenEstimator) CharsPerToken() int {
	return e.charsPerToken
}
