package guardrail

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	narrationStart = regexp.MustCompile(`(?i)^(she|he|they|her|his|their)\s+\w+`)
	quotedSpeech   = regexp.MustCompile(`["“]([^"”]{5,})["”]`)
)

// FixDialogue cleans a generated line so it reads as the character's own
// speech. Third person narration is reduced to the quoted speech inside
// it, and profanity is filtered according to the content rating.
func (g *Guard) FixDialogue(dialogue, characterID, rating string) string {
	original := dialogue
	d := strings.TrimSpace(dialogue)
	if characterID != "" {
		prefix := regexp.MustCompile(`(?i)^\*{0,2}` + regexp.QuoteMeta(characterID) + `\*{0,2}:\s*`)
		d = prefix.ReplaceAllString(d, "")
	}
	d = stripWrappingQuotes(d)

	if narrationStart.MatchString(d) {
		if m := quotedSpeech.FindStringSubmatchIndex(d); m != nil {
			preamble := strings.TrimSpace(strings.TrimRight(d[:m[0]], " ,:"))
			quote := strings.TrimSpace(d[m[2]:m[3]])
			if preamble != "" {
				d = "[" + preamble + "] " + quote
			} else {
				d = quote
			}
			g.logger.Warn("Converted narrated dialogue to speech", "character_id", characterID)
		}
	}

	d = strings.TrimSpace(g.filter.FilterForRating(d, rating))
	if d != strings.TrimSpace(original) {
		g.logger.Debug("Dialogue adjusted", "character_id", characterID, "before_len", utf8.RuneCountInString(original), "after_len", utf8.RuneCountInString(d))
	}
	return d
}

func stripWrappingQuotes(s string) string {
	for _, pair := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			inner := s[len(pair[0]) : len(s)-len(pair[1])]
			// leave lines like "A" and "B" alone
			if !strings.ContainsAny(inner, `"“”`) {
				return strings.TrimSpace(inner)
			}
		}
	}
	return s
}
