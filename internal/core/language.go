package core

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"tusas.com/document-qa/internal/domain"
)

const (
	minLanguageSampleRunes = 20
	languageMargin         = 1.2
)

var turkishWords = map[string]struct{}{
	"ve": {}, "bir": {}, "bu": {}, "için": {}, "ile": {}, "da": {}, "de": {},
	"olan": {}, "olarak": {}, "gibi": {}, "daha": {}, "çok": {}, "ancak": {},
	"veya": {}, "kadar": {}, "sonra": {}, "göre": {}, "her": {}, "ise": {}, "değil": {},
}

var englishWords = map[string]struct{}{
	"the": {}, "and": {}, "of": {}, "to": {}, "in": {}, "is": {}, "for": {},
	"with": {}, "that": {}, "this": {}, "are": {}, "on": {}, "as": {}, "be": {},
	"it": {}, "by": {}, "was": {}, "from": {}, "or": {}, "an": {},
}

const turkishDiacritics = "çğıöşü"

// DetectLanguage guesses tr/en from function-word and diacritic counts.
func DetectLanguage(text string) string {
	sample := strings.TrimSpace(strings.ToLower(text))
	if utf8.RuneCountInString(sample) < minLanguageSampleRunes {
		return domain.LanguageUnknown
	}

	var tr, en float64
	words := strings.FieldsFunc(sample, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if _, ok := turkishWords[w]; ok {
			tr++
		}
		if _, ok := englishWords[w]; ok {
			en++
		}
	}
	for _, r := range sample {
		if strings.ContainsRune(turkishDiacritics, r) {
			tr += 2
		}
	}

	switch {
	case tr == 0 && en == 0:
		return domain.LanguageUnknown
	case tr > en*languageMargin:
		return domain.LanguageTurkish
	case en > tr*languageMargin:
		return domain.LanguageEnglish
	default:
		return domain.LanguageOther
	}
}
