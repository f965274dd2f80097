package textfilter

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Severity separates ordinary swearing from slurs. Slurs are censored at
// every rating and make player input unacceptable.
type Severity int

const (
	SeverityMild Severity = iota
	SeveritySlur
)

type term struct {
	word        string
	replacement string
	severity    Severity
}

// Longer compound words come first so they win over their stems.
var terms = []term{
	{"motherfucker", "mother-trucker", SeverityMild},
	{"jesus christ", "jeez", SeverityMild},
	{"douchebag", "jerk", SeverityMild},
	{"horseshit", "nonsense", SeverityMild},
	{"bullshit", "baloney", SeverityMild},
	{"shithead", "jerk", SeverityMild},
	{"dickhead", "jerk", SeverityMild},
	{"smartass", "smarty", SeverityMild},
	{"asshole", "jerk", SeverityMild},
	{"goddamn", "gosh-dang", SeverityMild},
	{"dumbass", "dummy", SeverityMild},
	{"jackass", "jerk", SeverityMild},
	{"dipshit", "dummy", SeverityMild},
	{"badass", "tough", SeverityMild},
	{"bastard", "jerk", SeverityMild},
	{"christ", "crikey", SeverityMild},
	{"douche", "jerk", SeverityMild},
	{"prick", "jerk", SeverityMild},
	{"bitch", "jerk", SeverityMild},
	{"fuck", "fudge", SeverityMild},
	{"shit", "shoot", SeverityMild},
	{"damn", "dang", SeverityMild},
	{"hell", "heck", SeverityMild},
	{"crap", "crud", SeverityMild},
	{"piss", "ticked", SeverityMild},
	{"dick", "jerk", SeverityMild},
	{"ass", "butt", SeverityMild},
	{"cock", "[censored]", SeverityMild},
	{"pussy", "[censored]", SeverityMild},
	{"tits", "[censored]", SeverityMild},
	{"boobs", "[censored]", SeverityMild},
	{"whore", "[censored]", SeveritySlur},
	{"slut", "[censored]", SeveritySlur},
	{"fag", "[censored]", SeveritySlur},
	{"retard", "[censored]", SeveritySlur},
	{"nigger", "[censored]", SeveritySlur},
	{"nigga", "[censored]", SeveritySlur},
	{"spic", "[censored]", SeveritySlur},
	{"chink", "[censored]", SeveritySlur},
	{"kike", "[censored]", SeveritySlur},
}

type rule struct {
	re          *regexp.Regexp
	replacement string
	severity    Severity
}

// ProfanityFilter detects and replaces profanity in generated dialogue
// and screens player input for slurs. Safe for concurrent use.
type ProfanityFilter struct {
	rules []rule
}

func NewProfanityFilter() *ProfanityFilter {
	pf := &ProfanityFilter{rules: make([]rule, 0, len(terms))}
	for _, t := range terms {
		// optional plural suffix is captured so it can be carried over
		pattern := `(?i)\b` + regexp.QuoteMeta(t.word) + `(es|s)?\b`
		pf.rules = append(pf.rules, rule{
			re:          regexp.MustCompile(pattern),
			replacement: t.replacement,
			severity:    t.severity,
		})
	}
	return pf
}

// FilterText replaces every listed term with its clean alternative.
func (pf *ProfanityFilter) FilterText(text string) string {
	return pf.replace(text, SeverityMild)
}

// FilterForRating filters fully for G, PG and PG13 content. Other
// ratings only have slurs censored.
func (pf *ProfanityFilter) FilterForRating(text, rating string) string {
	if ShouldFilterContent(rating) {
		return pf.replace(text, SeverityMild)
	}
	return pf.replace(text, SeveritySlur)
}

func (pf *ProfanityFilter) replace(text string, minSeverity Severity) string {
	result := text
	for _, r := range pf.rules {
		if r.severity < minSeverity {
			continue
		}
		result = r.re.ReplaceAllStringFunc(result, func(match string) string {
			sub := r.re.FindStringSubmatch(match)
			suffix := ""
			if len(sub) > 1 {
				suffix = sub[1]
			}
			stem := match[:len(match)-len(suffix)]
			if suffix != "" && strings.HasPrefix(r.replacement, "[") {
				suffix = ""
			}
			if strings.EqualFold(suffix, "es") {
				suffix = suffix[1:]
			}
			return preserveCase(stem, r.replacement) + suffix
		})
	}
	return result
}

// ContainsProfanity reports whether any listed term appears.
func (pf *ProfanityFilter) ContainsProfanity(text string) bool {
	return pf.contains(text, SeverityMild)
}

// ContainsSlur reports whether a slur appears.
func (pf *ProfanityFilter) ContainsSlur(text string) bool {
	return pf.contains(text, SeveritySlur)
}

func (pf *ProfanityFilter) contains(text string, minSeverity Severity) bool {
	for _, r := range pf.rules {
		if r.severity >= minSeverity && r.re.MatchString(text) {
			return true
		}
	}
	return false
}

// preserveCase applies the case pattern of the original word to the replacement
func preserveCase(original, replacement string) string {
	if len(original) == 0 {
		return replacement
	}
	if strings.ToUpper(original) == original {
		return strings.ToUpper(replacement)
	}
	if strings.ToLower(original) == original {
		return strings.ToLower(replacement)
	}

	titleCaser := cases.Title(language.English)
	if titleCaser.String(strings.ToLower(original)) == original {
		return titleCaser.String(replacement)
	}

	// mixed case: copy case position by position
	result := []rune(replacement)
	originalRunes := []rune(original)
	for i := range result {
		if i < len(originalRunes) && unicode.IsUpper(originalRunes[i]) {
			result[i] = unicode.ToUpper(result[i])
		} else {
			result[i] = unicode.ToLower(result[i])
		}
	}
	return string(result)
}

// ShouldFilterContent determines if content should be filtered based on rating
func ShouldFilterContent(rating string) bool {
	rating = strings.ToUpper(strings.TrimSpace(rating))
	switch rating {
	case "G", "PG", "PG13", "PG-13":
		return true
	default:
		return false
	}
}
