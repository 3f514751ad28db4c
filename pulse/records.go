package pulse

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Survey parameter codes. Answers are on a 1-5 scale; the NPS answer is on 0-10.
const (
	ParamOverall = "overall"
	ParamNPS     = "nps"
)

// SurveyParams is the fixed order of scored survey questions.
var SurveyParams = []string{
	ParamOverall,
	"fo_checkin", "clean_checkin", "room_comfort",
	"fo_stay", "its_service", "hsk_stay", "breakfast",
	"atmosphere", "location", "value", "would_return",
}

var paramLabels = map[string]string{
	ParamOverall:    "Overall score",
	"fo_checkin":    "Front office at check-in",
	"clean_checkin": "Room cleanliness at check-in",
	"room_comfort":  "Room comfort and equipment",
	"fo_stay":       "Front office during the stay",
	"its_service":   "Technical service",
	"hsk_stay":      "Housekeeping during the stay",
	"breakfast":     "Breakfast",
	"atmosphere":    "Atmosphere",
	"location":      "Location",
	"value":         "Value for money",
	"would_return":  "Would return",
	ParamNPS:        "NPS",
}

// ParamLabel returns the display name of a parameter code.
func ParamLabel(code string) string {
	if l, ok := paramLabels[code]; ok {
		return l
	}
	return code
}

// paramRank orders known parameters first, in SurveyParams order, with NPS last.
func paramRank(code string) int {
	for i, p := range SurveyParams {
		if p == code {
			return i
		}
	}
	if code == ParamNPS {
		return len(SurveyParams)
	}
	return len(SurveyParams) + 1
}

// SurveyResponse is one parsed questionnaire.
type SurveyResponse struct {
	Date    time.Time
	Key     Identity
	Name    string
	Booking string
	Phone   string
	Email   string
	Comment string

	// Answers holds 1-5 answers keyed by parameter code; unanswered questions are absent.
	Answers map[string]float64
	// NPS is the 0-10 recommendation answer.
	NPS *float64
}

// Contact is the phone, or the email when no phone was given.
func (r SurveyResponse) Contact() string {
	if r.Phone != "" {
		return r.Phone
	}
	return r.Email
}

// Identified reports whether the questionnaire names its respondent by booking, name or contact.
func (r SurveyResponse) Identified() bool {
	return strings.TrimSpace(r.Booking+r.Name+r.Contact()) != ""
}

// AnswerSignature renders the answers in SurveyParams order followed by NPS, "-" for a gap.
func (r SurveyResponse) AnswerSignature() string {
	var b strings.Builder
	for _, p := range SurveyParams {
		if v, ok := r.Answers[p]; ok {
			b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		} else {
			b.WriteByte('-')
		}
		b.WriteByte(',')
	}
	if r.NPS != nil {
		b.WriteString(strconv.FormatFloat(*r.NPS, 'f', -1, 64))
	} else {
		b.WriteByte('-')
	}
	return b.String()
}

// Sentiment is the three-way overall label.
type Sentiment string

const (
	Positive Sentiment = "positive"
	Neutral  Sentiment = "neutral"
	Negative Sentiment = "negative"
)

// ParseSentiment maps the finer lexicon buckets and common synonyms onto the three labels.
func ParseSentiment(s string) Sentiment {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "pos"):
		return Positive
	case strings.HasPrefix(s, "neg"):
		return Negative
	default:
		return Neutral
	}
}

// SentimentFromScore labels a score in [-1,1] using a symmetric dead zone.
func SentimentFromScore(score, deadZone float64) Sentiment {
	switch {
	case score > deadZone:
		return Positive
	case score < -deadZone:
		return Negative
	default:
		return Neutral
	}
}

// SentimentFromRating is the fallback when text carries no signal: 9+ positive, 6 or less negative.
func SentimentFromRating(rating10 float64) Sentiment {
	switch {
	case rating10 >= 9:
		return Positive
	case rating10 <= 6:
		return Negative
	default:
		return Neutral
	}
}

// Review is one parsed review from any platform.
type Review struct {
	Date        time.Time
	Source      string
	Author      string
	Lang        string
	Rating10    *float64
	Text        string
	HasResponse bool
	Key         Identity
}

// Annotation is what a sentiment capability returns for one text.
type Annotation struct {
	SentimentScore   float64   `json:"sentiment_score"`
	SentimentOverall Sentiment `json:"sentiment_overall"`
	Aspects          []string  `json:"aspects"`
	Topics           []string  `json:"topics"`

	// Evidence counts the textual signals behind the score; zero means the text said nothing.
	Evidence int `json:"-"`
}

// SurveyMetricRow is one weekly aggregate for one parameter. NPS fields are set only on the
// nps row.
type SurveyMetricRow struct {
	WeekKey      string
	Param        string
	SurveysTotal int
	Answered     int
	Avg5         *float64
	Promoters    *int
	Detractors   *int
	NPSAnswers   *int
	NPSValue     *int
}

// PartitionKey is the (week_key, param) business key.
func (r SurveyMetricRow) PartitionKey() string { return r.WeekKey + "|" + r.Param }

// TextLimit caps the stored review excerpt, in runes.
const TextLimit = 500

// ReviewHistoryRow is one annotated review as stored in the ledger.
type ReviewHistoryRow struct {
	Date             time.Time
	WeekKey          string
	Source           string
	Lang             string
	Rating10         *float64
	SentimentScore   float64
	SentimentOverall Sentiment
	Aspects          []string
	Topics           []string
	HasResponse      bool
	ReviewKey        Identity
	TextTrimmed      string
	IngestedAt       time.Time
}

// NewReviewHistoryRow joins a review and its annotation into a ledger row.
func NewReviewHistoryRow(r Review, a Annotation, ingestedAt time.Time) ReviewHistoryRow {
	key := r.Key
	if key == "" {
		key = ReviewKey(r.Source, r.Author, r.Date, r.Text)
	}
	return ReviewHistoryRow{
		Date:             Day(r.Date),
		WeekKey:          WeekKey(r.Date),
		Source:           r.Source,
		Lang:             r.Lang,
		Rating10:         r.Rating10,
		SentimentScore:   Round(ClampScore(a.SentimentScore), 3),
		SentimentOverall: a.SentimentOverall,
		Aspects:          DedupeLabels(a.Aspects),
		Topics:           DedupeLabels(a.Topics),
		HasResponse:      r.HasResponse,
		ReviewKey:        key,
		TextTrimmed:      TrimText(r.Text, TextLimit),
		IngestedAt:       ingestedAt.UTC().Truncate(time.Second),
	}
}

// TrimText collapses whitespace and cuts s to at most max runes.
func TrimText(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max-1])) + "…"
}
