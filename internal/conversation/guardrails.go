package conversation

import (
	"regexp"
	"strings"

	"github.com/propertyhub/leadvoice/internal/llm"
	"github.com/propertyhub/leadvoice/internal/sessionstore"
)

// jaccardBlockThreshold is how similar two agent lines must be before
// the second one is considered a repetition and replaced.
const jaccardBlockThreshold = 0.80

const recentAgentTurns = 3

// fallbackProgression replaces a repetitive reply, tried in order until
// one passes the same repetition check.
var fallbackProgression = []string{
	"Let me put it this way: what matters most to you in this purchase?",
	"Fair enough. Would it help if I shared a couple of options that fit what you've described?",
	"I hear you. What would make this an easy yes for you?",
}

const closingPrompt = "Based on what you've told me, I think we have some great options. How about I arrange a site visit this weekend?"

// continuationPrompt hands the floor back to a caller who trailed off.
const continuationPrompt = "Go on, I'm listening."

// engagementSignals keep the call alive when the model votes to hang up
// but the caller is plainly still engaged.
var engagementSignals = []string{
	"how much", "when", "where", "tell me", "interested", "visit",
	"price", "details", "send", "what about", "which",
}

// fieldReask maps an already-collected field to the regexes that betray
// the model re-asking for it, plus the question that moves the
// conversation forward instead.
var fieldReask = map[string]struct {
	patterns    *regexp.Regexp
	progression string
}{
	"purpose": {
		patterns:    regexp.MustCompile(`(?i)(own use or investment|end.use or investment|purpose of (the )?purchase)`),
		progression: "And what budget range are you comfortable with?",
	},
	"budget": {
		patterns:    regexp.MustCompile(`(?i)(budget|price range|how much (are you|can you|would you))`),
		progression: "Got it. When are you planning to make the move?",
	},
	"timeline": {
		patterns:    regexp.MustCompile(`(?i)(when are you (planning|looking)|timeline|how soon)`),
		progression: "Great. How about we set up a quick site visit this weekend?",
	},
	"location": {
		patterns:    regexp.MustCompile(`(?i)(which (locality|area)|what location|where are you looking)`),
		progression: "Which configuration works for you, 2 BHK or 3 BHK?",
	},
	"property_type": {
		patterns:    regexp.MustCompile(`(?i)((which|what).{0,20}(bhk|configuration)|property type)`),
		progression: "Any particular locality you prefer?",
	},
}

// validateReply applies the deterministic guardrails to the model's
// reply, in a fixed order, and mutates the snapshot's collected data
// and question-context bookkeeping.
func validateReply(snap *sessionstore.Snapshot, res llm.Result, pre preResult, userText string) llm.Result {
	if strings.TrimSpace(res.ResponseText) == "" {
		res.ResponseText = "I'm here! Could you repeat that?"
		res.ShouldEndCall = false
	}

	if pre.wrongName && res.ShouldEndCall {
		res.ShouldEndCall = false
		if res.NextAction == llm.ActionEndCall {
			res.NextAction = llm.ActionRespond
		}
	}
	if pre.wrongName && !strings.Contains(strings.ToLower(res.ResponseText), "alex") {
		res.ResponseText = "I'm Alex, but no worries! " + res.ResponseText
	}

	if res.ShouldEndCall && hasEngagementSignal(userText) {
		res.ShouldEndCall = false
		if res.NextAction == llm.ActionEndCall {
			res.NextAction = llm.ActionRespond
		}
	}

	if snap.CollectedData == nil {
		snap.CollectedData = make(map[string]string)
	}
	for k, v := range res.ExtractedData {
		if strings.TrimSpace(v) != "" && !strings.EqualFold(v, "null") {
			snap.CollectedData[k] = v
		}
	}

	// A caller who paused mid-thought gets the floor back instead of a
	// new question, and the call never ends on the fragment. Extracted
	// data from the fragment is already merged above.
	if pre.midSentence || res.CustomerMidSentence {
		res.ShouldEndCall = false
		if res.NextAction == llm.ActionEndCall {
			res.NextAction = llm.ActionRespond
		}
		res.ResponseText = continuationPrompt
		res.LastQuestionAsked = ""
		res.QuestionType = ""
		return res
	}

	if replacement, blocked := repetitionCheck(res.ResponseText, recentAgentLines(snap)); blocked {
		res.ResponseText = replacement
	}

	for field := range snap.CollectedData {
		rule, ok := fieldReask[field]
		if !ok {
			continue
		}
		if rule.patterns.MatchString(res.ResponseText) {
			res.ResponseText = rule.progression
			break
		}
	}

	if pre.ackPrefix != "" {
		res.ResponseText = pre.ackPrefix + res.ResponseText
	}

	if res.LastQuestionAsked != "" {
		snap.LastAgentQuestion = res.LastQuestionAsked
		snap.LastAgentQuestionType = res.QuestionType
	}
	return res
}

func hasEngagementSignal(userText string) bool {
	lower := strings.ToLower(userText)
	for _, signal := range engagementSignals {
		if !strings.Contains(lower, signal) {
			continue
		}
		// "interested" inside "not interested" is a refusal, not engagement.
		if signal == "interested" && strings.Contains(lower, "not interested") {
			continue
		}
		return true
	}
	return false
}

func recentAgentLines(snap *sessionstore.Snapshot) []string {
	var lines []string
	for i := len(snap.Transcript) - 1; i >= 0 && len(lines) < recentAgentTurns; i-- {
		if snap.Transcript[i].Speaker == "agent" {
			lines = append(lines, snap.Transcript[i].Text)
		}
	}
	return lines
}

// repetitionCheck returns a replacement and true when text repeats one
// of the recent agent lines.
func repetitionCheck(text string, recent []string) (string, bool) {
	if !repeatsAny(text, recent) {
		return text, false
	}
	for _, fallback := range fallbackProgression {
		if !repeatsAny(fallback, recent) {
			return fallback, true
		}
	}
	return closingPrompt, true
}

func repeatsAny(text string, recent []string) bool {
	for _, prev := range recent {
		if strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(prev)) {
			return true
		}
		if jaccard(wordSet(text), wordSet(prev)) >= jaccardBlockThreshold {
			return true
		}
	}
	return false
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:'\"")
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
