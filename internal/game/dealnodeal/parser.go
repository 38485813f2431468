package dealnodeal

import (
	"strconv"
	"strings"
)

// Normalized vote tokens stored in the vote map.
const (
	VoteDeal   = "deal"
	VoteNoDeal = "nodeal"
	VoteSwitch = "switch"
	VoteKeep   = "keep"
)

// ParseCaseVote recognizes a one-based case number between 1 and TotalCases.
// The returned token is the canonical decimal string.
func ParseCaseVote(text string) (string, bool) {
	t := strings.TrimSpace(text)
	n, err := strconv.Atoi(t)
	if err != nil || n < 1 || n > TotalCases {
		return "", false
	}
	return strconv.Itoa(n), true
}

// caseTokenToIndex converts a stored case vote token to a zero-based index.
func caseTokenToIndex(token string) (int, bool) {
	n, err := strconv.Atoi(token)
	if err != nil || n < 1 || n > TotalCases {
		return 0, false
	}
	return n - 1, true
}

// ParseDealVote recognizes the deal / no-deal chat tokens.
func ParseDealVote(text string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "deal", "yes", "d":
		return VoteDeal, true
	case "no", "nodeal", "no deal", "n":
		return VoteNoDeal, true
	}
	return "", false
}

// ParseSwitchKeepVote recognizes the switch / keep chat tokens.
func ParseSwitchKeepVote(text string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "switch", "s":
		return VoteSwitch, true
	case "keep", "k":
		return VoteKeep, true
	}
	return "", false
}
