package game

import (
	"testing"

	"github.com/resonara/server/internal/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckExtraction(t *testing.T) {
	clues := []string{
		"The <sun> rises in the east.",
		"Under the <oak> a key lies.",
		"Count the <night> stars.",
	}
	// s, a, n → "san"
	assert.True(t, CheckExtraction(clues, []int{1, 2, 1}, "san"))
	assert.True(t, CheckExtraction(clues, []int{1, 2, 1}, "SAN"))
	assert.False(t, CheckExtraction(clues, []int{1, 2, 1}, "sun"))
}

func TestCheckExtractionPatternWraps(t *testing.T) {
	clues := []string{"<ab>", "<cd>", "<ef>"}
	// pattern of one index applies to every clue: a, c, e
	assert.True(t, CheckExtraction(clues, []int{1}, "ace"))
	assert.True(t, CheckExtraction(clues, []int{2}, "bdf"))
}

func TestCheckExtractionRejectsBadInput(t *testing.T) {
	assert.False(t, CheckExtraction(nil, []int{1}, "a"))
	assert.False(t, CheckExtraction([]string{"<ab>"}, nil, "a"))
	assert.False(t, CheckExtraction([]string{"no region"}, []int{1}, "n"))
	assert.False(t, CheckExtraction([]string{"<ab>"}, []int{3}, "a")) // out of range
	assert.False(t, CheckExtraction([]string{"<ab>"}, []int{0}, "a")) // 1-based
}

func TestGlowRegion(t *testing.T) {
	assert.Equal(t, "glow", glowRegion("the <glow> word"))
	assert.Equal(t, "", glowRegion("no markers"))
	assert.Equal(t, "", glowRegion("open < only"))
	assert.Equal(t, "first", glowRegion("<first> and <second>"))
}

func TestMatchKeyword(t *testing.T) {
	k := &persist.LoreKeeper{Keywords: map[string]string{
		"river": "The river remembers.",
	}}
	reply, ok := matchKeyword(k, "tell me about the RIVER please")
	assert.True(t, ok)
	assert.Equal(t, "The river remembers.", reply)

	_, ok = matchKeyword(k, "tell me about the mountain")
	assert.False(t, ok)

	_, ok = matchKeyword(&persist.LoreKeeper{}, "river")
	assert.False(t, ok)
}

func TestMatchKeywordIsDeterministic(t *testing.T) {
	k := &persist.LoreKeeper{Keywords: map[string]string{
		"stone": "Stones hum at dusk.",
		"river": "The river remembers.",
		"ash":   "Ash settles everywhere.",
	}}
	// All three keywords appear; the sorted first always wins.
	for i := 0; i < 50; i++ {
		reply, ok := matchKeyword(k, "ash on the stone by the river")
		require.True(t, ok)
		assert.Equal(t, "Ash settles everywhere.", reply)
	}
}

func TestMentionsName(t *testing.T) {
	assert.True(t, mentionsName("hello Elder Maru", "Elder Maru"))
	assert.True(t, mentionsName("hey maru, what gives", "Elder Maru"))
	assert.False(t, mentionsName("hello there", "Elder Maru"))
}

func TestIsHelpRequest(t *testing.T) {
	assert.True(t, isHelpRequest("help me"))
	assert.True(t, isHelpRequest("a hint?"))
	assert.True(t, isHelpRequest("WHAT is this"))
	assert.False(t, isHelpRequest("sunrise"))
}

func TestHasLetters(t *testing.T) {
	assert.True(t, hasLetters("abc"))
	assert.True(t, hasLetters("12a"))
	assert.False(t, hasLetters("123 !!"))
	assert.False(t, hasLetters(""))
}
