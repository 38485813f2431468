package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGuessAcceptable(t *testing.T) {
	cases := []struct {
		target, guess string
		want          bool
	}{
		{"Hackspett", "hackspett", true},
		{"Hackspett", "hakspett", true},  // one deletion
		{"Hackspett", "hacskpett", true}, // transposition
		{"Hackspett", "woodpecker", false},
		{"Vitkål", "vitkal", true},
		{"Atlas", "alta", false}, // distance 2, threshold 1
		{"Atlas", "atlsa", true}, // transposition
		{"ko", "ko", true},
		{"ko", "kp", false}, // short targets must be exact
		{"  Stol  ", "stol", true},
		{"Palindrom", "", false},
		{"", "anything", false},
		{"Mellanstadielärare", "melanstadielarare", true}, // long target, threshold 4
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsGuessAcceptable(tc.target, tc.guess),
			"target=%q guess=%q", tc.target, tc.guess)
	}
}

func TestDamerauLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "acb", 1},
		{"ca", "abc", 3}, // OSA, not full Damerau
		{"kitten", "sitting", 3},
		{"åäö", "aao", 3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, damerauLevenshtein(tc.a, tc.b), "%q vs %q", tc.a, tc.b)
	}
}
