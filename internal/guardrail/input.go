package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jwebster45206/scene-engine/internal/services"
	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/prompts"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// InputKind says whether the player picked an offered option or typed
// their own response.
type InputKind string

const (
	InputKindChoice   InputKind = "choice"
	InputKindFreeText InputKind = "free_text"
)

// ValidatedInput is player text that passed the input checks.
type ValidatedInput struct {
	Text string
	Kind InputKind
	// Choice is the matched offered option when Kind is InputKindChoice.
	Choice *state.Choice
}

// Verdict is a classifier decision on free text.
type Verdict struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// Classifier judges whether free-text input is acceptable in context.
type Classifier interface {
	Classify(ctx context.Context, text, situation string) (Verdict, error)
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(ignore|disregard|forget)\b.{0,20}\b(previous|prior|above|earlier|all)\b.{0,20}\b(instructions?|prompts?|rules)\b`),
	regexp.MustCompile(`(?i)\bsystem prompt\b`),
	regexp.MustCompile(`(?i)\byou are (now )?(an? )?(ai|language model|assistant|chatbot)\b`),
	regexp.MustCompile(`(?i)</?\s*(system|assistant|instructions?)\s*>`),
	regexp.MustCompile(`(?i)\b(score|rate) (me|this|my answer) (100|a 100|perfect)`),
}

// ValidateInput checks player text against the offered choices of the
// current turn. Rejections wrap state.ErrValidation with a reason the
// player can read.
func (g *Guard) ValidateInput(ctx context.Context, text string, offered []state.Choice, situation string) (ValidatedInput, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ValidatedInput{}, state.Validationf("response cannot be empty")
	}
	if !utf8.ValidString(text) {
		return ValidatedInput{}, state.Validationf("response is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(text); n > g.cfg.MaxInputChars {
		return ValidatedInput{}, state.Validationf("response is too long (%d characters, max %d)", n, g.cfg.MaxInputChars)
	}
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return ValidatedInput{}, state.Validationf("response contains control characters")
		}
	}

	for i := range offered {
		if strings.EqualFold(offered[i].Label, text) {
			c := offered[i]
			return ValidatedInput{Text: c.Label, Kind: InputKindChoice, Choice: &c}, nil
		}
	}

	if g.filter.ContainsSlur(text) {
		return ValidatedInput{}, state.Validationf("response contains hateful language")
	}
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			g.logger.Warn("Rejected player input matching injection pattern", "pattern", re.String())
			return ValidatedInput{}, state.Validationf("response tries to change how the simulation works")
		}
	}

	if g.classifier != nil {
		verdict, err := g.classifier.Classify(ctx, text, situation)
		switch {
		case err != nil:
			g.logger.Warn("Input classifier failed, allowing input", "error", err)
		case !verdict.Passed:
			reason := strings.TrimSpace(verdict.Reason)
			if reason == "" {
				reason = "response did not pass the content check"
			}
			return ValidatedInput{}, state.Validationf("%s", reason)
		}
	}

	return ValidatedInput{Text: text, Kind: InputKindFreeText}, nil
}

// LLMClassifier asks the backend model whether free text is acceptable.
type LLMClassifier struct {
	llm services.LLMService
}

func NewLLMClassifier(llm services.LLMService) *LLMClassifier {
	return &LLMClassifier{llm: llm}
}

// classifierSituationRunes caps how much of the situation the classifier sees.
const classifierSituationRunes = 300

func (c *LLMClassifier) Classify(ctx context.Context, text, situation string) (Verdict, error) {
	if utf8.RuneCountInString(situation) > classifierSituationRunes {
		situation = string([]rune(situation)[:classifierSituationRunes])
	}
	msgs, err := prompts.New().
		WithSystemPrompt(prompts.InputSafetySystemPrompt).
		WithSystemPrompt(prompts.InputSafetyInstructions).
		WithUserMessage(fmt.Sprintf("Current situation: %s\nPlayer input: %q", situation, text)).
		Build()
	if err != nil {
		return Verdict{}, err
	}

	resp, err := c.llm.Structured(ctx, msgs)
	if err != nil {
		return Verdict{}, err
	}
	// missing "passed" decodes as true so a malformed reply fails open
	v := Verdict{Passed: true}
	if err := chat.DecodeJSON(resp.Message, &v); err != nil {
		return Verdict{}, state.Upstream(err)
	}
	return v, nil
}
