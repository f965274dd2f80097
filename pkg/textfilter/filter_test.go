package textfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfanityFilter_FilterText(t *testing.T) {
	pf := NewProfanityFilter()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean text untouched", "Let's review the design doc together.", "Let's review the design doc together."},
		{"lower case", "this is bullshit", "this is baloney"},
		{"title case", "Damn, that deadline.", "Dang, that deadline."},
		{"upper case", "WHAT THE HELL", "WHAT THE HECK"},
		{"multi word term", "Jesus Christ, again?", "Jeez, again?"},
		{"plural keeps suffix", "a pair of jackasses", "a pair of jerks"},
		{"compound beats stem", "you dumbass", "you dummy"},
		{"word boundaries respected", "hello class, assess the shell script", "hello class, assess the shell script"},
		{"censored plural drops suffix", "whores", "[censored]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pf.FilterText(tt.in))
		})
	}
}

func TestProfanityFilter_FilterForRating(t *testing.T) {
	pf := NewProfanityFilter()

	tests := []struct {
		rating string
		in     string
		want   string
	}{
		{"PG13", "That's crap.", "That's crud."},
		{"pg-13", "That's crap.", "That's crud."},
		{"G", "hell no", "heck no"},
		{"R", "That's crap.", "That's crap."},
		{"R", "don't be a retard", "don't be a [censored]"},
		{"", "That's crap.", "That's crap."},
	}
	for _, tt := range tests {
		t.Run(tt.rating+"/"+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, pf.FilterForRating(tt.in, tt.rating))
		})
	}
}

func TestProfanityFilter_Contains(t *testing.T) {
	pf := NewProfanityFilter()

	assert.True(t, pf.ContainsProfanity("well, shit"))
	assert.False(t, pf.ContainsProfanity("Shall we sync at three?"))

	assert.True(t, pf.ContainsSlur("What a Retard."))
	assert.False(t, pf.ContainsSlur("well, shit"), "mild profanity is not a slur")
	assert.False(t, pf.ContainsSlur("spicy food at the offsite"))
}

func TestShouldFilterContent(t *testing.T) {
	for _, rating := range []string{"G", "PG", "PG13", "PG-13", " pg13 "} {
		assert.True(t, ShouldFilterContent(rating), rating)
	}
	for _, rating := range []string{"R", "NC17", "", "unrated"} {
		assert.False(t, ShouldFilterContent(rating), rating)
	}
}

func TestPreserveCase(t *testing.T) {
	assert.Equal(t, "JERK", preserveCase("DICK", "jerk"))
	assert.Equal(t, "jerk", preserveCase("dick", "jerk"))
	assert.Equal(t, "Jerk", preserveCase("Dick", "jerk"))
	assert.Equal(t, "jErk", preserveCase("dIck", "jerk"))
	assert.Equal(t, "jerk", preserveCase("", "jerk"))
}
