package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"02.01.2006",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"2.1.2006",
	"02.01.06",
	"02/01/2006",
	"02/01/2006 15:04",
	"2006/01/02",
}

// ParseDate accepts ISO dates and day-first European dates, with or without a time part.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// parseNumber extracts the first number of a cell, accepting decimal commas and ignoring
// surrounding text such as "4 из 5" or "80%". Dashes and blanks are missing values.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	switch s {
	case "", "-", "—", "–", "n/a", "nan":
		return 0, false
	}
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// To5Scale maps a score on a 5, 10 or 100 point scale onto 0-5.
func To5Scale(s string) (float64, bool) {
	v, ok := parseNumber(s)
	if !ok || v < 0 {
		return 0, false
	}
	switch {
	case v <= 5:
		return v, true
	case v <= 10:
		return v / 2, true
	case v <= 100:
		return v / 20, true
	}
	return 0, false
}

// ParseNPS reads a 0-10 recommendation answer.
func ParseNPS(s string) (float64, bool) {
	v, ok := parseNumber(s)
	if !ok || v < 0 || v > 10 {
		return 0, false
	}
	return v, true
}

// legacyNPS maps a 1-5 recommendation answer onto 0-10 keeping its bucket: 5 is a promoter,
// 3-4 are passive, 1-2 are detractors.
func legacyNPS(s string) (float64, bool) {
	v, ok := To5Scale(s)
	if !ok || v < 1 {
		return 0, false
	}
	switch {
	case v >= 4.5:
		return 10, true
	case v >= 3.5:
		return 8, true
	case v >= 2.5:
		return 7, true
	default:
		return v * 2, true
	}
}

// RatingTo10 maps a platform rating onto 0-10. Values up to 5 are doubled only for sources that
// rate out of five; 100-point values are divided by ten.
func RatingTo10(s, source string) (float64, bool) {
	v, ok := parseNumber(s)
	if !ok || v < 0 {
		return 0, false
	}
	switch {
	case v <= 5 && FiveStarSource(source):
		return v * 2, true
	case v <= 10:
		return v, true
	case v <= 100:
		return v / 10, true
	}
	return 0, false
}

// ParseYesNo reads has_response style cells.
func ParseYesNo(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "да", "есть", "y", "yes", "true", "1":
		return true, true
	case "нет", "n", "no", "false", "0", "":
		return false, true
	}
	return false, false
}

var sourceCanon = map[string]string{
	"tl: marketing": "tl_marketing", "tl marketing": "tl_marketing", "tl-marketing": "tl_marketing",
	"trip.com": "trip_com", "tripcom": "trip_com",
	"yandex": "yandex", "яндекс": "yandex", "яндекс путешествия": "yandex", "yandex travel": "yandex", "yandex.travel": "yandex",
	"ostrovok.ru": "ostrovok", "ostrovok": "ostrovok", "emerging travel group": "ostrovok",
	"2gis": "2gis", "2 гис": "2gis", "2гис": "2gis",
	"sutochno": "sutochno", "суточно": "sutochno", "суточно.ру": "sutochno",
	"google": "google", "google maps": "google", "google reviews": "google",
	"tripadvisor": "tripadvisor", "trip advisor": "tripadvisor",
	"onetwotrip": "onetwotrip", "one two trip": "onetwotrip", "one-two-trip": "onetwotrip",
	"101hotels.com": "101hotels", "101hotels": "101hotels",
	"tvil.ru": "tvil", "tvil": "tvil",
	"tophotels": "tophotels", "top hotels": "tophotels",
	"booking": "booking", "booking.com": "booking",
}

var sourceContains = []struct{ needle, code string }{
	{"yandex", "yandex"}, {"яндекс", "yandex"},
	{"booking", "booking"},
	{"tripadvisor", "tripadvisor"}, {"trip advisor", "tripadvisor"},
	{"google", "google"},
	{"2gis", "2gis"},
	{"ostrovok", "ostrovok"},
	{"onetwotrip", "onetwotrip"},
	{"101hotels", "101hotels"},
	{"tvil", "tvil"},
	{"tophotels", "tophotels"},
	{"sutochno", "sutochno"}, {"суточно", "sutochno"},
}

var sourceDisplay = map[string]string{
	"tl_marketing": "TL: Marketing",
	"trip_com":     "Trip.com",
	"yandex":       "Yandex",
	"ostrovok":     "Ostrovok.ru",
	"2gis":         "2GIS",
	"sutochno":     "Sutochno.ru",
	"google":       "Google",
	"tripadvisor":  "TripAdvisor",
	"onetwotrip":   "OneTwoTrip",
	"101hotels":    "101Hotels.com",
	"tvil":         "Tvil.ru",
	"tophotels":    "TopHotels",
	"booking":      "Booking.com",
}

var fiveStarSources = map[string]bool{
	"tl_marketing": true, "trip_com": true, "yandex": true, "2gis": true, "google": true, "tripadvisor": true,
}

// NormalizeSource maps a free-form platform name to its canonical code. Unknown names are
// returned lowercased so they still show up in reports.
func NormalizeSource(s string) string {
	raw := strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " "))
	if raw == "" {
		return ""
	}
	if code, ok := sourceCanon[raw]; ok {
		return code
	}
	if code, ok := sourceCanon[strings.ReplaceAll(raw, ".", "")]; ok {
		return code
	}
	for _, c := range sourceContains {
		if strings.Contains(raw, c.needle) {
			return c.code
		}
	}
	if strings.Contains(raw, "tl") && strings.Contains(raw, "marketing") {
		return "tl_marketing"
	}
	return raw
}

// SourceDisplayName returns the human name of a source code.
func SourceDisplayName(code string) string {
	if d, ok := sourceDisplay[code]; ok {
		return d
	}
	return code
}

// FiveStarSource reports whether a platform rates out of five.
func FiveStarSource(code string) bool { return fiveStarSources[code] }

var langCanon = map[string]string{
	"ru": "ru", "ru-ru": "ru", "rus": "ru", "russian": "ru", "русский": "ru",
	"en": "en", "en-us": "en", "en-gb": "en", "eng": "en", "english": "en", "английский": "en",
	"tr": "tr", "turkish": "tr",
	"ar": "ar", "arabic": "ar",
	"zh": "zh", "zh-cn": "zh", "zh-hans": "zh", "chinese": "zh",
}

// NormalizeLang maps a language cell to ru, en, tr, ar, zh or other. When the cell is empty or
// unknown the language is guessed from the text's script.
func NormalizeLang(cell, text string) string {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(cell)), "_", "-")
	if l, ok := langCanon[key]; ok {
		return l
	}
	return guessLang(text)
}

func guessLang(text string) string {
	var cyr, lat, arab, han, turkish int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyr++
		case unicode.Is(unicode.Arabic, r):
			arab++
		case unicode.Is(unicode.Han, r):
			han++
		case strings.ContainsRune("ğĞşŞıİ", r):
			turkish++
			lat++
		case unicode.Is(unicode.Latin, r):
			lat++
		}
	}
	switch {
	case cyr == 0 && lat == 0 && arab == 0 && han == 0:
		return "other"
	case cyr >= lat && cyr >= arab && cyr >= han:
		return "ru"
	case han >= arab && han >= lat:
		return "zh"
	case arab >= lat:
		return "ar"
	case turkish > 0:
		return "tr"
	}
	return "en"
}
