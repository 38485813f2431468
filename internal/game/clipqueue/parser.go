package clipqueue

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	urlIDPattern  = regexp.MustCompile(`(?:(?:https?://)?(?:www\.)?(?:youtube\.com/(?:watch\?v=|embed/|v/)|youtu\.be/))([a-zA-Z0-9_-]{11})`)
	bareIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	durationRe    = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)
)

// ParseClipCommand recognizes the "!clip <argument>" chat command and
// returns the raw argument. ok is false for chat that is not a clip command
// at all; an empty argument returns ("", true) so the caller can reject it
// visibly.
func ParseClipCommand(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(strings.ToLower(t), "!clip") {
		return "", false
	}
	rest := t[len("!clip"):]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		// "!clipsomething" is ordinary chat, not the command.
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// ExtractVideoID pulls the 11-character YouTube video ID out of a watch,
// embed, shortlink URL, or a bare ID.
func ExtractVideoID(arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	if m := urlIDPattern.FindStringSubmatch(arg); m != nil {
		return m[1], true
	}
	if bareIDPattern.MatchString(arg) {
		return arg, true
	}
	return "", false
}

// ParseISO8601Duration converts a YouTube-style PT#H#M#S duration to whole
// seconds. ok is false for anything it cannot parse, including the empty
// string.
func ParseISO8601Duration(s string) (int, bool) {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	total := 0
	for i, mult := range []int{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, false
		}
		total += n * mult
	}
	return total, true
}
