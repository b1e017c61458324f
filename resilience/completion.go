package resilience

import (
	"regexp"
	"strings"
)

// Signal is the parsed outcome of ParseCompletionSignal.
type Signal string

const (
	SignalNone     Signal = "none"
	SignalContinue Signal = "continue"
	SignalComplete Signal = "complete"
	SignalBlocked  Signal = "blocked"
	SignalError    Signal = "error"
)

var (
	completePattern = regexp.MustCompile(`(?i)\[TASK_COMPLETE\]`)
	blockedPattern  = regexp.MustCompile(`(?i)\[BLOCKED:\s*([^\]]*)\]`)
	errorPattern    = regexp.MustCompile(`(?i)\[ERROR:\s*([^\]]*)\]`)
	continuePattern = regexp.MustCompile(`(?i)\[CONTINUE:\s*([^\]]*)\]`)
)

var signalPatterns = []struct {
	signal  Signal
	pattern *regexp.Regexp
}{
	{SignalComplete, completePattern},
	{SignalBlocked, blockedPattern},
	{SignalError, errorPattern},
	{SignalContinue, continuePattern},
}

// ParseCompletionSignal scans text for bracket markers, case-insensitively.
// When multiple markers are present, the one starting earliest in text wins
// (spec §4.F "first match wins"), not a fixed priority among marker kinds.
// Absent any marker it returns (SignalNone, "").
func ParseCompletionSignal(text string) (Signal, string) {
	best := -1
	var signal Signal = SignalNone
	var detail string

	for _, sp := range signalPatterns {
		loc := sp.pattern.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		if best == -1 || loc[0] < best {
			best = loc[0]
			signal = sp.signal
			detail = ""
			if len(loc) >= 4 && loc[2] >= 0 {
				detail = strings.TrimSpace(text[loc[2]:loc[3]])
			}
		}
	}
	return signal, detail
}
