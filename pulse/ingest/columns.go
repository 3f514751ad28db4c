package ingest

import (
	"strings"
	"unicode"
)

// Survey column aliases, most specific first. Headers are matched by colKey, so punctuation and
// case do not matter.
var surveyAliases = []struct {
	field   string
	aliases []string
}{
	{"overall", []string{"Средняя оценка гостя", "Итоговая оценка", "Общая оценка", "Overall score", "overall"}},
	{"fo_checkin", []string{"№ 1.1 Оцените работу службы приёма и размещения при заезде", "1.1 прием и размещение при заезде", "front office at check-in"}},
	{"clean_checkin", []string{"№ 1.2 Оцените чистоту номера при заезде", "1.2 чистота при заезде", "room cleanliness at check-in"}},
	{"room_comfort", []string{"№ 1.3 Оцените комфорт и оснащение номера", "1.3 комфорт и оснащение", "room comfort"}},
	{"fo_stay", []string{"№ 2.1 Оцените работу службы приёма и размещения во время проживания", "2.1 прием и размещение во время проживания", "front office during the stay"}},
	{"its_service", []string{"№ 2.2 Оцените работу технической службы", "2.2 техническая служба", "technical service"}},
	{"hsk_stay", []string{"№ 2.3 Оцените уборку номера во время проживания", "2.3 уборка во время проживания", "housekeeping during the stay"}},
	{"breakfast", []string{"№ 2.4 Оцените завтраки", "2.4 завтраки", "breakfast"}},
	{"atmosphere", []string{"№ 3.1 Оцените атмосферу в отеле", "3.1 атмосфера", "atmosphere"}},
	{"location", []string{"№ 3.2 Оцените расположение отеля", "3.2 расположение", "location"}},
	{"value", []string{"№ 3.3 Оцените соотношение цены и качества", "3.3 цена/качество", "value for money"}},
	{"would_return", []string{"№ 3.4 Хотели бы вы вернуться", "3.4 вернулись бы", "would return"}},
	{"nps_1_5", []string{"№ 3.5 Оцените вероятность того, что вы порекомендуете нас друзьям и близким (по шкале от 1 до 5)", "3.5 nps 1-5", "nps (1-5)", "nps 1-5"}},
	{"nps", []string{"nps (0-10)", "nps 0-10", "Вероятность рекомендации", "likelihood to recommend", "nps"}},
	{"survey_date", []string{"Дата анкетирования", "Дата прохождения опроса", "Дата заполнения", "Дата и время", "Дата опроса", "Дата анкеты", "Survey date", "Дата", "date"}},
	{"comment", []string{"Комментарий гостя", "Комментарий", "Отзыв", "comment"}},
	{"fio", []string{"ФИО", "Имя гостя", "Имя", "guest name", "name"}},
	{"booking", []string{"Номер брони", "Бронь", "Бронирование", "booking"}},
	{"phone", []string{"Телефон", "Тел.", "phone"}},
	{"email", []string{"Email", "E-mail", "Почта"}},
}

// Review export columns matched exactly on colKey.
var reviewColumns = map[string]string{
	"дата": "date", "date": "date",
	"рейтинг": "rating10", "rating": "rating10", "rating10": "rating10", "оценка": "rating10",
	"источник": "source", "source": "source", "площадка": "source",
	"автор": "author", "author": "author", "пользователь": "author",
	"код языка": "lang", "язык": "lang", "lang": "lang", "language": "lang",
	"текст отзыва": "text", "текст": "text", "отзыв": "text", "review": "text", "review text": "text", "comment": "text",
	"наличие ответа": "has_response", "ответ": "has_response", "ответ на отзыв": "has_response", "есть ответ": "has_response",
	"has_response": "has_response", "has response": "has_response",
}

// colKey lowercases a header, folds no-break spaces and turns punctuation into spaces.
func colKey(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "\u00a0", " "))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// findColumn returns the index of the first unused header matching one of aliases. An exact
// match wins over a substring match, which wins over a header containing every word of a
// multi-word alias.
func findColumn(keys []string, used map[int]bool, aliases []string) int {
	for _, a := range aliases {
		k := colKey(a)
		for i, h := range keys {
			if !used[i] && h == k {
				return i
			}
		}
	}
	for _, a := range aliases {
		k := colKey(a)
		if k == "" {
			continue
		}
		for i, h := range keys {
			if !used[i] && strings.Contains(h, k) {
				return i
			}
		}
	}
	for _, a := range aliases {
		var words []string
		for _, w := range strings.Fields(colKey(a)) {
			if len([]rune(w)) > 1 {
				words = append(words, w)
			}
		}
		if len(words) < 2 {
			continue
		}
		for i, h := range keys {
			if used[i] {
				continue
			}
			all := true
			for _, w := range words {
				if !strings.Contains(h, w) {
					all = false
					break
				}
			}
			if all {
				return i
			}
		}
	}
	return -1
}

// resolveSurveyColumns maps survey fields to header indexes. A header is claimed by at most one
// field.
func resolveSurveyColumns(header []string) map[string]int {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = colKey(h)
	}
	used := map[int]bool{}
	cols := map[string]int{}
	for _, f := range surveyAliases {
		if i := findColumn(keys, used, f.aliases); i >= 0 {
			cols[f.field] = i
			used[i] = true
		}
	}
	return cols
}

// resolveReviewColumns maps review fields to header indexes; the first header wins.
func resolveReviewColumns(header []string) map[string]int {
	cols := map[string]int{}
	for i, h := range header {
		f, ok := reviewColumns[colKey(h)]
		if !ok {
			continue
		}
		if _, seen := cols[f]; !seen {
			cols[f] = i
		}
	}
	return cols
}
