package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/propertyhub/leadvoice/internal/audio"
	"github.com/propertyhub/leadvoice/internal/interrupt"
	"github.com/propertyhub/leadvoice/internal/llm"
	"github.com/propertyhub/leadvoice/internal/logging"
	"github.com/propertyhub/leadvoice/internal/observability"
	"github.com/propertyhub/leadvoice/internal/reliability"
	"github.com/propertyhub/leadvoice/internal/sessionstore"
	"github.com/propertyhub/leadvoice/internal/store"
	"github.com/propertyhub/leadvoice/internal/stt"
	"github.com/propertyhub/leadvoice/internal/telephony"
	"github.com/propertyhub/leadvoice/internal/tts"
)

// fillerDelay is how long the model may think before the caller hears a
// short acknowledgement instead of silence.
const fillerDelay = 300 * time.Millisecond

// interruptCheckStride is the egress cadence for barge-in checks: every
// third 20 ms slice, roughly 60 ms.
const interruptCheckStride = 3

// sliceDuration paces egress to real time.
const sliceDuration = 20 * time.Millisecond

// Sender pushes one outbound media frame to the telephony websocket.
type Sender interface {
	SendMedia(streamSID, payloadB64 string) error
}

// StartEvent is the parsed telephony start frame.
type StartEvent struct {
	CallSID     string
	StreamSID   string
	From        string
	To          string
	CustomField string
}

// Session is one live call owned by the manager. Its websocket events
// arrive sequentially; the speaking goroutine is the only other writer
// and both go through mu.
type Session struct {
	mu   sync.Mutex
	snap sessionstore.Snapshot

	sender Sender

	audioBuffer   []byte
	speechActive  bool
	silenceChunks int
	// processing is true from end-of-utterance until the reply starts
	// playing; media arriving meanwhile is dropped.
	processing bool
	finalized  bool

	lastIntent   llm.Intent
	lastAction   llm.NextAction
	endedByAgent bool
	clarifyIdx   int

	maxTimer *time.Timer
}

// Manager drives every active call through the listen, transcribe,
// think, speak loop.
type Manager struct {
	stt       stt.Transcriber
	llm       llm.Generator
	tts       tts.Synthesizer
	snapshots *sessionstore.Store
	store     store.Store
	flags     *interrupt.Flags
	metrics   *observability.Metrics
	fillers   *Fillers
	logger    *slog.Logger

	model           string
	maxCallDuration time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

type Options struct {
	STT             stt.Transcriber
	LLM             llm.Generator
	TTS             tts.Synthesizer
	Snapshots       *sessionstore.Store
	Store           store.Store
	Flags           *interrupt.Flags
	Metrics         *observability.Metrics
	Fillers         *Fillers
	Logger          *slog.Logger
	Model           string
	MaxCallDuration time.Duration
}

func NewManager(opts Options) *Manager {
	if opts.Fillers == nil {
		opts.Fillers = &Fillers{}
	}
	if opts.MaxCallDuration <= 0 {
		opts.MaxCallDuration = 10 * time.Minute
	}
	return &Manager{
		stt:             opts.STT,
		llm:             opts.LLM,
		tts:             opts.TTS,
		snapshots:       opts.Snapshots,
		store:           opts.Store,
		flags:           opts.Flags,
		metrics:         opts.Metrics,
		fillers:         opts.Fillers,
		logger:          opts.Logger,
		model:           opts.Model,
		maxCallDuration: opts.MaxCallDuration,
		sessions:        make(map[string]*Session),
	}
}

// Start creates the session for a call, speaks the deterministic intro
// and begins listening. A duplicate start returns the existing session.
func (m *Manager) Start(ctx context.Context, ev StartEvent, sender Sender) *Session {
	m.mu.Lock()
	if existing, ok := m.sessions[ev.CallSID]; ok {
		m.mu.Unlock()
		return existing
	}

	snap := sessionstore.Snapshot{
		CallSID:       ev.CallSID,
		StreamSID:     ev.StreamSID,
		LeadPhone:     ev.To,
		CollectedData: make(map[string]string),
		StartedAt:     time.Now().UTC(),
	}
	if ev.CustomField != "" {
		var lead telephony.LeadContext
		if err := json.Unmarshal([]byte(ev.CustomField), &lead); err == nil {
			snap.LeadID = lead.LeadID
			snap.LeadName = lead.LeadName
			if lead.LeadPhone != "" {
				snap.LeadPhone = lead.LeadPhone
			}
			snap.PropertyType = lead.PropertyType
			snap.Location = lead.Location
			snap.CampaignID = lead.CampaignID
			snap.ScheduledCallID = lead.ScheduledCallID
		} else {
			m.logger.Warn("start event custom field not parseable",
				"call_sid", ev.CallSID, "error", err)
		}
	}

	s := &Session{snap: snap, sender: sender}
	m.sessions[ev.CallSID] = s
	m.mu.Unlock()

	m.metrics.ActiveCalls.Inc()
	s.maxTimer = time.AfterFunc(m.maxCallDuration, func() {
		m.logger.Info("call hit max duration", "call_sid", ev.CallSID)
		m.Stop(context.Background(), ev.CallSID)
	})

	intro := Intro(&s.snap)
	s.mu.Lock()
	s.appendTranscript("agent", intro)
	s.mu.Unlock()
	m.persist(ctx, s)

	m.logger.Info("call session started",
		"call_sid", ev.CallSID,
		"lead_id", snap.LeadID,
		"phone", logging.MaskPhone(snap.LeadPhone))

	go m.speak(context.Background(), s, intro, false)
	return s
}

// Media handles one inbound audio frame.
func (m *Manager) Media(ctx context.Context, callSID, payload string) {
	s := m.get(callSID)
	if s == nil {
		return
	}
	pcm, err := audio.DecodeBase64PCM(payload)
	if err != nil {
		m.metrics.CountError(string(reliability.KindGatewayProtocol), "conversation")
		return
	}

	s.mu.Lock()
	switch {
	case s.snap.IsBotSpeaking:
		if audio.IsSpeech(pcm, audio.DefaultSpeechThreshold) {
			s.snap.ShouldStopSpeaking = true
			m.flags.Set(callSID)
			s.mu.Unlock()
			m.metrics.Stages.ObserveIndicator(observability.IndicatorBargeIn)
			m.persist(ctx, s)
			return
		}
		s.mu.Unlock()

	case s.processing || !s.snap.WaitingForResponse:
		s.mu.Unlock()

	default:
		s.audioBuffer = append(s.audioBuffer, pcm...)
		if audio.IsSpeech(pcm, audio.DefaultSpeechThreshold) {
			s.speechActive = true
			s.silenceChunks = 0
		} else if s.speechActive {
			s.silenceChunks++
		}

		endOfUtterance := s.speechActive &&
			s.silenceChunks >= audio.SilenceChunksRequired &&
			len(s.audioBuffer) >= audio.MinUtteranceBytes
		if !endOfUtterance {
			s.mu.Unlock()
			return
		}

		utterance := s.audioBuffer
		s.audioBuffer = nil
		s.speechActive = false
		s.silenceChunks = 0
		s.processing = true
		s.snap.WaitingForResponse = false
		s.mu.Unlock()
		m.persist(ctx, s)
		go m.processUtterance(s, utterance)
	}
}

// processUtterance runs one full turn: transcribe, think, validate, speak.
func (m *Manager) processUtterance(s *Session, pcm []byte) {
	ctx := context.Background()
	callSID := s.callSID()
	turnStart := time.Now()

	sttStart := time.Now()
	result, err := m.stt.Transcribe(ctx, pcm, callSID)
	m.metrics.STTDuration.Observe(time.Since(sttStart).Seconds())
	m.metrics.Stages.Observe(observability.StageSTT, time.Since(sttStart))
	if err != nil {
		m.metrics.CountError(string(reliability.KindOf(err)), "stt")
		m.logger.Warn("transcription failed", "call_sid", callSID, "error", err)
	}
	if err != nil || result == nil {
		m.metrics.Stages.ObserveIndicator(observability.IndicatorRepeatPrompt)
		m.speak(ctx, s, s.nextClarification(), false)
		return
	}

	s.mu.Lock()
	s.appendTranscript("user", result.Text)
	history := historyFromTranscript(s.snap.Transcript)
	prompt := buildSystemPrompt(&s.snap)
	s.mu.Unlock()
	m.persist(ctx, s)

	pre := preprocess(result.Text)

	type genOut struct {
		res llm.Result
		err error
	}
	resCh := make(chan genOut, 1)
	llmStart := time.Now()
	go func() {
		res, err := m.llm.Generate(ctx, result.Text, history, prompt)
		resCh <- genOut{res, err}
	}()

	var out genOut
	fillerTimer := time.NewTimer(fillerDelay)
	select {
	case out = <-resCh:
		fillerTimer.Stop()
	case <-fillerTimer.C:
		if filler := m.fillers.Pick(); filler != nil {
			m.metrics.Stages.ObserveIndicator(observability.IndicatorFillerPlayed)
			m.sendPCM(s, filler)
		}
		out = <-resCh
	}
	m.metrics.LLMDuration.WithLabelValues(m.model).Observe(time.Since(llmStart).Seconds())
	m.metrics.Stages.Observe(observability.StageLLM, time.Since(llmStart))
	if out.err != nil {
		m.metrics.CountError(string(reliability.KindOf(out.err)), "llm")
		m.logger.Warn("llm turn failed, using safe default", "call_sid", callSID, "error", out.err)
		// Collected data must not advance on an untrusted reply.
		out.res.ExtractedData = nil
	}

	s.mu.Lock()
	validated := validateReply(&s.snap, out.res, pre, result.Text)
	s.lastIntent = validated.Intent
	s.lastAction = validated.NextAction
	s.appendTranscript("agent", validated.ResponseText)
	s.mu.Unlock()
	m.persist(ctx, s)

	m.metrics.Stages.Observe(observability.StageTurnTotal, time.Since(turnStart))
	m.speak(ctx, s, validated.ResponseText, validated.ShouldEndCall)
}

// speak synthesizes and plays one agent line, honoring barge-in, then
// returns the call to listening or finalizes it.
func (m *Manager) speak(ctx context.Context, s *Session, text string, endAfter bool) {
	callSID := s.callSID()

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.processing = false
	s.snap.IsBotSpeaking = true
	s.snap.WaitingForResponse = false
	s.snap.ShouldStopSpeaking = false
	s.mu.Unlock()
	m.flags.Clear(callSID)
	m.persist(ctx, s)

	ttsStart := time.Now()
	pcm, err := m.tts.Synthesize(ctx, text, callSID)
	m.metrics.TTSDuration.Observe(time.Since(ttsStart).Seconds())
	m.metrics.Stages.Observe(observability.StageTTS, time.Since(ttsStart))
	if err != nil {
		m.metrics.CountError(string(reliability.KindOf(err)), "tts")
		m.logger.Warn("synthesis failed, skipping utterance", "call_sid", callSID, "error", err)
	} else {
		m.sendPCM(s, pcm)
	}

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.snap.IsBotSpeaking = false
	s.snap.WaitingForResponse = true
	s.snap.ShouldStopSpeaking = false
	s.silenceChunks = 0
	s.mu.Unlock()
	m.flags.Clear(callSID)
	m.persist(ctx, s)

	if endAfter {
		s.mu.Lock()
		s.endedByAgent = true
		s.mu.Unlock()
		m.finalize(ctx, s)
	}
}

// sendPCM streams slices to the caller at real-time pace, checking the
// interruption flag every third slice.
func (m *Manager) sendPCM(s *Session, pcm []byte) {
	callSID := s.callSID()
	s.mu.Lock()
	streamSID := s.snap.StreamSID
	s.mu.Unlock()

	for i, slice := range audio.ChunkPCM(pcm, 20) {
		if i%interruptCheckStride == 0 {
			s.mu.Lock()
			interrupted := s.snap.ShouldStopSpeaking || s.finalized
			s.mu.Unlock()
			if interrupted || m.flags.IsSet(callSID) {
				m.logger.Debug("playback interrupted by caller", "call_sid", callSID)
				return
			}
		}
		if err := s.sender.SendMedia(streamSID, audio.EncodePCMBase64(slice)); err != nil {
			m.logger.Warn("media send failed, finalizing call", "call_sid", callSID, "error", err)
			m.finalize(context.Background(), s)
			return
		}
		time.Sleep(sliceDuration)
	}
}

// Stop finalizes the call on the telephony stop event or disconnect.
func (m *Manager) Stop(ctx context.Context, callSID string) {
	if s := m.get(callSID); s != nil {
		m.finalize(ctx, s)
	}
}

// Clear resets the conversation to the moment right after the intro.
func (m *Manager) Clear(ctx context.Context, callSID string) {
	s := m.get(callSID)
	if s == nil {
		return
	}
	s.mu.Lock()
	intro := ""
	for _, entry := range s.snap.Transcript {
		if entry.Speaker == "agent" {
			intro = entry.Text
			break
		}
	}
	s.snap.Transcript = s.snap.Transcript[:0]
	if intro != "" {
		s.appendTranscript("agent", intro)
	}
	s.snap.CollectedData = make(map[string]string)
	s.snap.LastAgentQuestion = ""
	s.snap.LastAgentQuestionType = ""
	s.snap.IsBotSpeaking = false
	s.snap.WaitingForResponse = true
	s.snap.ShouldStopSpeaking = false
	s.audioBuffer = nil
	s.speechActive = false
	s.silenceChunks = 0
	s.processing = false
	s.mu.Unlock()
	m.flags.Clear(callSID)
	m.persist(ctx, s)
}

// DTMF handles keypad input; "0" hands off to a human and closes.
func (m *Manager) DTMF(ctx context.Context, callSID, digit string) {
	s := m.get(callSID)
	if s == nil {
		return
	}
	if digit == "0" {
		s.mu.Lock()
		s.appendTranscript("user", "[pressed 0]")
		s.lastIntent = llm.IntentRequestingCallback
		s.mu.Unlock()
		m.persist(ctx, s)
		m.speak(ctx, s, "Sure, I'll have a senior advisor call you back shortly. Thank you!", true)
		return
	}
	s.mu.Lock()
	s.appendTranscript("user", "[pressed "+digit+"]")
	s.mu.Unlock()
	m.persist(ctx, s)
}

// ActiveCount reports how many calls the manager currently owns.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// finalize writes the durable CallSession row, decides the outcome and
// releases every per-call resource. Safe to call more than once.
func (m *Manager) finalize(ctx context.Context, s *Session) {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	if s.maxTimer != nil {
		s.maxTimer.Stop()
	}
	snap := s.snap
	outcome := s.outcomeLocked()
	s.mu.Unlock()

	m.mu.Lock()
	delete(m.sessions, snap.CallSID)
	m.mu.Unlock()

	now := time.Now().UTC()
	duration := now.Sub(snap.StartedAt)

	cs, err := m.store.CallSessionBySID(ctx, snap.CallSID)
	if errors.Is(err, store.ErrNotFound) {
		cs = store.CallSession{
			CallSID:         snap.CallSID,
			LeadID:          snap.LeadID,
			CampaignID:      snap.CampaignID,
			ScheduledCallID: snap.ScheduledCallID,
			Status:          store.SessionInProgress,
		}
		if cs, err = m.store.CreateCallSession(ctx, cs); err != nil {
			m.metrics.CountError(string(reliability.KindDatabase), "conversation")
			m.logger.Error("call session create at finalize failed",
				"call_sid", snap.CallSID, "error", err)
		}
		err = nil
	}
	if err != nil {
		m.metrics.CountError(string(reliability.KindDatabase), "conversation")
		m.logger.Error("call session lookup at finalize failed",
			"call_sid", snap.CallSID, "error", err)
	} else {
		cs.Status = store.SessionCompleted
		cs.Outcome = outcome
		cs.DurationSeconds = int(duration.Seconds())
		cs.Transcript = transcriptFromSnapshot(snap.Transcript)
		cs.CollectedData = snap.CollectedData
		cs.EndedAt = &now
		if err := m.store.UpdateCallSession(ctx, cs); err != nil {
			m.metrics.CountError(string(reliability.KindDatabase), "conversation")
			m.logger.Error("call session update at finalize failed",
				"call_sid", snap.CallSID, "error", err)
		}
	}

	m.snapshots.Delete(ctx, snap.CallSID)
	m.flags.Clear(snap.CallSID)
	m.metrics.ActiveCalls.Dec()
	m.metrics.ObserveCallDuration(duration)
	m.metrics.CallsCompleted.WithLabelValues(snap.CampaignID, string(outcome)).Inc()

	m.logger.Info("call finalized",
		"call_sid", snap.CallSID,
		"outcome", outcome,
		"duration_s", int(duration.Seconds()),
		"turns", len(snap.Transcript))
}

func (s *Session) outcomeLocked() store.Outcome {
	switch {
	case s.lastIntent == llm.IntentReadyToVisit || s.lastAction == llm.ActionScheduleVisit:
		return store.OutcomeQualified
	case s.lastIntent == llm.IntentNotInterested:
		return store.OutcomeNotInterested
	case s.endedByAgent:
		return store.OutcomeCallbackRequested
	default:
		return store.OutcomeDisconnected
	}
}

func (m *Manager) get(callSID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[callSID]
}

// persist writes the live snapshot. A finalized call must never come
// back to the session store, so this is a no-op once finalize ran.
func (m *Manager) persist(ctx context.Context, s *Session) {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	snap := s.snap
	s.mu.Unlock()
	if err := m.snapshots.Put(ctx, snap); err != nil {
		m.metrics.CountError(string(reliability.KindSessionStore), "conversation")
		m.logger.Warn("session snapshot persist failed", "call_sid", snap.CallSID, "error", err)
	}
}

func (s *Session) callSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.CallSID
}

func (s *Session) appendTranscript(speaker, text string) {
	s.snap.Transcript = append(s.snap.Transcript, sessionstore.TranscriptLine{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Session) nextClarification() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := clarificationLines[s.clarifyIdx%len(clarificationLines)]
	s.clarifyIdx++
	return line
}

// historyFromTranscript maps transcript lines to model turns, excluding
// the just-appended current user utterance.
func historyFromTranscript(transcript []sessionstore.TranscriptLine) []llm.Turn {
	if len(transcript) == 0 {
		return nil
	}
	prior := transcript[:len(transcript)-1]
	turns := make([]llm.Turn, 0, len(prior))
	for _, entry := range prior {
		role := "user"
		if entry.Speaker == "agent" {
			role = "assistant"
		}
		turns = append(turns, llm.Turn{Role: role, Text: entry.Text})
	}
	return turns
}

func transcriptFromSnapshot(lines []sessionstore.TranscriptLine) []store.TranscriptEntry {
	out := make([]store.TranscriptEntry, len(lines))
	for i, line := range lines {
		out[i] = store.TranscriptEntry{
			Speaker:   line.Speaker,
			Text:      line.Text,
			Timestamp: line.Timestamp,
		}
	}
	return out
}
