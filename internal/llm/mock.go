package llm

import (
	"context"
	"strings"
	"sync"
)

// Mock answers with keyword-driven rules so a full call can be walked
// through locally without an API key.
type Mock struct {
	mu     sync.Mutex
	script []Result
	next   int
}

func NewMock(script ...Result) *Mock {
	return &Mock{script: script}
}

func (m *Mock) Generate(_ context.Context, userInput string, _ []Turn, _ string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next < len(m.script) {
		res := m.script[m.next]
		m.next++
		return res, nil
	}

	lower := strings.ToLower(userInput)
	switch {
	case strings.Contains(lower, "not interested"):
		return Result{
			Intent:        IntentNotInterested,
			NextAction:    ActionEndCall,
			ResponseText:  "No problem at all, thanks for your time. Have a great day!",
			ShouldEndCall: true,
		}, nil
	case strings.Contains(lower, "call back") || strings.Contains(lower, "callback") || strings.Contains(lower, "busy"):
		return Result{
			Intent:        IntentRequestingCallback,
			NextAction:    ActionEndCall,
			ResponseText:  "Sure, I'll call you back later. Thanks!",
			ShouldEndCall: true,
		}, nil
	case strings.Contains(lower, "visit") || strings.Contains(lower, "saturday") || strings.Contains(lower, "sunday"):
		return Result{
			Intent:       IntentReadyToVisit,
			NextAction:   ActionScheduleVisit,
			ResponseText: "Perfect, I'll set up the site visit and text you the details.",
		}, nil
	case strings.Contains(lower, "budget") || strings.Contains(lower, "price") || strings.Contains(lower, "how much"):
		return Result{
			Intent:            IntentAskingBudget,
			NextAction:        ActionRespond,
			ResponseText:      "Prices there start around 85 lakhs. Does that fit your budget?",
			LastQuestionAsked: "Does that fit your budget?",
			QuestionType:      "budget",
		}, nil
	default:
		return Result{
			Intent:            IntentConfirmingInterest,
			NextAction:        ActionAskQuestion,
			ResponseText:      "Got it. Is this for your own use or as an investment?",
			LastQuestionAsked: "Is this for your own use or as an investment?",
			QuestionType:      "purpose",
		}, nil
	}
}
