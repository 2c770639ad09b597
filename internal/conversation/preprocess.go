package conversation

import (
	"regexp"
	"strings"
)

// preResult is what the fast pre-LLM text checks learned about the
// user's utterance. It steers post-LLM enforcement.
type preResult struct {
	// ackPrefix, when set, is prepended to the agent reply so channel
	// problems are acknowledged without waiting on the model.
	ackPrefix string
	// wrongName means the caller addressed the agent by a wrong name;
	// the agent must self-correct and may not end the call this turn.
	wrongName bool
	// midSentence means the caller likely paused rather than finished.
	midSentence bool
}

var technicalClarificationRE = regexp.MustCompile(
	`(?i)\b(can you hear me|are you there|am i audible|is (this|the) (line|call) (ok|okay|clear)|hello\?+\s*hello)\b`)

// Wrong names callers commonly use for the agent. Closed list; anything
// outside it is treated as a reference to a third person, not the agent.
var wrongAgentNames = []string{
	"rahul", "amit", "raj", "rohit", "vikram", "suresh", "ramesh", "sanjay", "arjun",
}

var wrongNameRE = regexp.MustCompile(
	`(?i)\b(hi|hello|hey|thanks|thank you|listen|look|no)[,!]?\s+(` + strings.Join(wrongAgentNames, "|") + `)\b`)

var trailingFillerRE = regexp.MustCompile(`(?i)\b(like|so|umm+|uh+|and|but|because)[.,!?]?$`)

var fillerOnlyRE = regexp.MustCompile(`(?i)^[\s.,]*((umm+|uh+|hmm+|like|so|well|actually)[\s.,]*)+$`)

func preprocess(text string) preResult {
	var pre preResult
	trimmed := strings.TrimSpace(text)

	if technicalClarificationRE.MatchString(trimmed) {
		pre.ackPrefix = "Yes, I can hear you clearly. "
	}
	if wrongNameRE.MatchString(trimmed) {
		pre.wrongName = true
	}
	switch {
	case strings.HasSuffix(trimmed, "..."):
		pre.midSentence = true
	case trailingFillerRE.MatchString(trimmed):
		pre.midSentence = true
	case len(strings.Fields(trimmed)) <= 3 && fillerOnlyRE.MatchString(trimmed):
		pre.midSentence = true
	}
	return pre
}
