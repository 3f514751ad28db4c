package sentiment

import (
	"strings"
)

const reviewInstructions = `You annotate hotel guest reviews for a weekly quality report.

For the review you receive, return:
- sentiment_score: a number from -1 (very negative) to 1 (very positive) for the review as a whole.
  Mixed reviews land near 0. Politeness formulas alone do not make a review positive.
- sentiment_overall: positive, neutral or negative, consistent with the score.
- aspects: concrete things the guest praised or criticized, as short snake_case labels that carry
  their polarity (breakfast_variety_poor, spir_friendly, noisy_room). At most 6.
- topics: broad categories the aspects belong to (staff, cleanliness, comfort, fnb, location, value,
  tech, front_office, atmosphere, safety). At most 4.

Reviews may be in Russian, English, Turkish, Arabic or Chinese. Labels are always English.
Return only the JSON object.`

// composeInstructions appends the known aspect labels so the model reuses them.
func composeInstructions(vocabulary string) string {
	vocabulary = strings.TrimSpace(vocabulary)
	if vocabulary == "" {
		return reviewInstructions
	}
	return reviewInstructions + "\n\nKnown aspect labels; reuse one when it fits instead of inventing a synonym:\n" + vocabulary
}

func reviewPrompt(text, lang string) string {
	var b strings.Builder
	if lang != "" {
		b.WriteString("Language: ")
		b.WriteString(lang)
		b.WriteString("\n")
	}
	b.WriteString("Review:\n")
	b.WriteString(strings.TrimSpace(text))
	return b.String()
}
