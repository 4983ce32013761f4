package intake

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// MinIncidentWords is the word count at which an utterance is taken as the
// incident description even without incident vocabulary.
const MinIncidentWords = 6

var (
	existingClientPattern = regexp.MustCompile(`(?i)\b(existing|already (?:a |an )?client|current client)\b`)
	newMatterPattern      = regexp.MustCompile(`(?i)\b(accident|injur(?:y|ies|ed)|crash(?:ed)?|collision|new client|new case)\b`)

	phonePattern = regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?\b(\d{3})\)?[\s.-]?(\d{3})[\s.-]?(\d{4})\b`)
	emailPattern = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)

	introPattern = regexp.MustCompile(`(?i)\b(?:my name is|my name's|name's|this is|i am|i'm)\s+`)
	wordPattern  = regexp.MustCompile(`[A-Za-z][A-Za-z'.-]*`)

	monthDatePattern    = regexp.MustCompile(`(?i)\b(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?\b`)
	numericDatePattern  = regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/(?:\d{4}|\d{2}))?\b`)
	relativeDatePattern = regexp.MustCompile(`(?i)\b(?:yesterday|today|this morning|this afternoon|last night|last (?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|week|weekend|month)|(?:\d+|a|one|two|three|four|five|six|a few|several) (?:days?|weeks?|months?) ago)\b`)

	locationPattern = regexp.MustCompile(`\b(?i:in|at|near)\s+([A-Z][A-Za-z.'-]*(?:\s+[A-Z][A-Za-z.'-]*){0,3})(?:,\s*([A-Z]{2})\b)?`)

	incidentPattern = regexp.MustCompile(`(?i)\b(accident|crash(?:ed)?|collision|injur(?:y|ies|ed)|hurt|fell|fall|slipped|tripped|bite|bitten|rear[- ]ended|hit|wreck(?:ed)?|struck)\b`)
)

// stopWords never form part of a name or a place.
var stopWords = map[string]bool{
	"i": true, "i'm": true, "im": true, "the": true, "a": true, "an": true, "my": true,
	"this": true, "that": true, "hello": true, "hi": true, "hey": true, "yes": true,
	"yeah": true, "no": true, "okay": true, "ok": true, "thank": true, "thanks": true,
	"please": true, "well": true, "so": true, "and": true, "but": true, "um": true,
	"uh": true, "sure": true, "good": true, "morning": true, "afternoon": true,
	"evening": true, "yesterday": true, "today": true, "tonight": true,
	"tomorrow": true, "last": true, "next": true, "ago": true,
	"mr": true, "mrs": true, "ms": true, "dr": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true, "may": true,
	"june": true, "july": true, "august": true, "september": true, "october": true,
	"november": true, "december": true,
}

// placePrepositions disqualify a capitalized run from being a name.
var placePrepositions = map[string]bool{
	"in": true, "at": true, "on": true, "near": true, "from": true, "to": true,
}

// incidentPhrases are things callers say after "in"/"at" that are not places.
var incidentPhrases = []string{"accident", "crash", "collision", "wreck", "incident", "hospital", "er"}

func extractClassification(text string) string {
	if existingClientPattern.MatchString(text) {
		return ClassificationExisting
	}
	if newMatterPattern.MatchString(text) {
		return ClassificationNew
	}
	return ""
}

func extractPhone(text string) string {
	m := phonePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])
}

func extractEmail(text string) string {
	return strings.ToLower(emailPattern.FindString(text))
}

func extractName(text string) string {
	tokens := wordPattern.FindAllStringIndex(text, -1)

	// An explicit introduction wins over any other capitalized run.
	for _, loc := range introPattern.FindAllStringIndex(text, -1) {
		for i, tok := range tokens {
			if tok[0] < loc[1] {
				continue
			}
			if tok[0] == loc[1] {
				if run := capitalizedRun(text, tokens, i); len(run) >= 2 {
					return strings.Join(run, " ")
				}
			}
			break
		}
	}

	for i := 0; i < len(tokens); i++ {
		if i > 0 && adjacent(text, tokens[i-1], tokens[i]) &&
			placePrepositions[strings.ToLower(text[tokens[i-1][0]:tokens[i-1][1]])] {
			continue
		}
		if i > 0 && adjacent(text, tokens[i-1], tokens[i]) && isNameWord(text[tokens[i-1][0]:tokens[i-1][1]]) {
			continue
		}
		if run := capitalizedRun(text, tokens, i); len(run) >= 2 {
			return strings.Join(run, " ")
		}
	}
	return ""
}

// capitalizedRun collects up to three adjacent name-like words from tokens[start].
func capitalizedRun(text string, tokens [][]int, start int) []string {
	var run []string
	for i := start; i < len(tokens) && len(run) < 3; i++ {
		if i > start && !adjacent(text, tokens[i-1], tokens[i]) {
			break
		}
		raw := text[tokens[i][0]:tokens[i][1]]
		word := strings.TrimRight(raw, ".'-")
		if !isNameWord(word) {
			break
		}
		run = append(run, word)
		// A trailing period ends the sentence unless it marks an initial.
		if strings.HasSuffix(raw, ".") && len(word) > 1 {
			break
		}
	}
	return run
}

func isNameWord(word string) bool {
	if word == "" || stopWords[strings.ToLower(strings.TrimRight(word, ".'-"))] {
		return false
	}
	r := []rune(word)
	if !unicode.IsUpper(r[0]) {
		return false
	}
	// All-caps tokens are usually acronyms or state codes.
	return len(r) == 1 || strings.ToUpper(word) != word
}

// adjacent reports whether only spaces separate two tokens.
func adjacent(text string, a, b []int) bool {
	return strings.TrimSpace(text[a[1]:b[0]]) == ""
}

func extractDate(text string) string {
	for _, p := range []*regexp.Regexp{monthDatePattern, numericDatePattern, relativeDatePattern} {
		if m := p.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

func extractLocation(text string) string {
	for _, m := range locationPattern.FindAllStringSubmatch(text, -1) {
		city := trimPlace(m[1])
		if city == "" || isIncidentPhrase(city) {
			continue
		}
		if m[2] != "" && city == strings.TrimSpace(m[1]) {
			return city + ", " + m[2]
		}
		return city
	}
	return ""
}

// trimPlace cuts a candidate place at the first stop word.
func trimPlace(candidate string) string {
	var kept []string
	for _, word := range strings.Fields(candidate) {
		if stopWords[strings.ToLower(strings.TrimRight(word, ".'-"))] {
			break
		}
		kept = append(kept, word)
	}
	return strings.TrimRight(strings.Join(kept, " "), ".")
}

func isIncidentPhrase(candidate string) bool {
	lower := strings.ToLower(candidate)
	for _, phrase := range incidentPhrases {
		for _, word := range strings.Fields(lower) {
			if word == phrase {
				return true
			}
		}
	}
	return false
}

func extractIncident(text string) string {
	if incidentPattern.MatchString(text) || len(strings.Fields(text)) >= MinIncidentWords {
		return text
	}
	return ""
}
