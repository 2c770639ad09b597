package conversation

import (
	"fmt"
	"strings"

	"github.com/propertyhub/leadvoice/internal/sessionstore"
)

// Intro returns the deterministic permission-seeking opener. It never
// goes through the model so the caller hears a voice within the first
// beat of the connected call.
func Intro(snap *sessionstore.Snapshot) string {
	name := snap.LeadName
	if name == "" {
		name = "there"
	}
	propertyType := snap.PropertyType
	if propertyType == "" {
		propertyType = "a property"
	}
	location := snap.Location
	if location == "" {
		location = "your preferred area"
	}
	return fmt.Sprintf("Hi %s, Alex from PropertyHub. You inquired about %s in %s. Is this a good time?",
		name, propertyType, location)
}

// clarificationLines rotate when an utterance could not be transcribed.
var clarificationLines = []string{
	"Sorry, I didn't catch that. Could you repeat?",
	"The line broke up a little. Could you say that again?",
	"Sorry, once more please?",
}

func buildSystemPrompt(snap *sessionstore.Snapshot) string {
	var b strings.Builder
	b.WriteString("You are Alex, a friendly real-estate advisor calling on behalf of PropertyHub. ")
	b.WriteString("You speak Indian English, warm and to the point, heavy on contractions. ")
	b.WriteString("Keep every reply under 40 words and ask at most one question per turn.\n\n")

	b.WriteString("Lead context:\n")
	fmt.Fprintf(&b, "- Name: %s\n", snap.LeadName)
	fmt.Fprintf(&b, "- Interested in: %s in %s\n", snap.PropertyType, snap.Location)
	if len(snap.CollectedData) > 0 {
		b.WriteString("- Already known (never ask for these again):\n")
		for k, v := range snap.CollectedData {
			fmt.Fprintf(&b, "    %s: %s\n", k, v)
		}
	}
	if snap.LastAgentQuestion != "" {
		fmt.Fprintf(&b, "- Your previous question (%s): %q. Interpret short answers against it.\n",
			snap.LastAgentQuestionType, snap.LastAgentQuestion)
	}

	b.WriteString(`
Your goal: qualify the lead (purpose, budget, timeline) and steer toward a site visit. Never pressure; if they are not interested, thank them and end.

Respond with ONE JSON object, nothing else, with exactly these fields:
{
  "intent": "asking_budget|confirming_interest|objecting|requesting_callback|not_interested|ready_to_visit|unclear",
  "next_action": "ask_question|respond|schedule_visit|end_call",
  "response_text": "what you say next, conversational, under 40 words",
  "should_end_call": false,
  "extracted_data": {"purpose|budget|timeline|location|property_type": "value"},
  "last_question_asked": "the question inside response_text, or null",
  "question_type": "purpose|budget|timeline|location|property_type|other or null",
  "customer_mid_sentence": false
}
Omit extracted_data keys you did not learn this turn.`)
	return b.String()
}
