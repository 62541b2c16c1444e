package tom

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/remotelab/remote-client/internal/wire"
)

// recentActionWindow caps how many player actions the agent remembers.
const recentActionWindow = 5

// hesitationThreshold is the hesitation duration (ms) above which the
// agent steps in with encouragement.
const hesitationThresholdMs = 5000

// importantActions always trigger a contextual reply.
var importantActions = map[string]bool{
	"file_delete":         true,
	"file_properties":     true,
	"system_corruption":   true,
	"hesitation_detected": true,
}

// emotionalMarkers matches the French vocabulary the agent leans on to
// build rapport.
var emotionalMarkers = regexp.MustCompile(`(?i)\b(inquiet|rassurant|confiance|ensemble|équipe|peur|stress)\b`)

// encouragements are the canned replies to long hesitations.
var encouragements = []Message{
	{
		Content: "Je vois que tu hésites. C'est normal, personne n'aime supprimer ses fichiers. " +
			"Mais crois-moi, c'est temporaire. On va tout récupérer après, d'accord ?",
		EmotionalContext: map[string]float64{"empathy": 0.9, "reassurance": 0.8},
	},
	{
		Content: "Prends ton temps. Moi aussi, la première fois que j'ai dû faire ça, j'ai hésité. " +
			"Mais c'est comme retirer un pansement - mieux vaut le faire d'un coup.",
		EmotionalContext: map[string]float64{"self_disclosure": 0.8, "empathy": 0.7},
	},
	{
		Content: "Tu sais quoi ? Si ça peut t'aider, je reste là avec toi. On est une équipe, maintenant. " +
			"Tu n'es pas seul face à ça.",
		EmotionalContext: map[string]float64{"support": 0.9, "trust_building": 0.8},
	},
}

// RecordPlayerAction folds a player action into the agent's context and
// asks the backend for a reply when the action warrants one.
func (s *Store) RecordPlayerAction(action wire.ActionData) {
	s.mu.Lock()
	firstAction := len(s.ctx.recentActions) == 0
	s.ctx.recentActions = append([]wire.ActionData{action}, s.ctx.recentActions...)
	if len(s.ctx.recentActions) > recentActionWindow {
		s.ctx.recentActions = s.ctx.recentActions[:recentActionWindow]
	}
	respond := s.shouldRespondLocked(action, firstAction)
	s.mu.Unlock()

	if respond {
		s.GenerateContextualMessage(action)
	}
}

// shouldRespondLocked decides whether an action deserves a generated
// reply: important actions and the first action always do; under high
// stress the agent answers half the time.
func (s *Store) shouldRespondLocked(action wire.ActionData, firstAction bool) bool {
	if importantActions[action.Type] {
		return true
	}
	if firstAction {
		return true
	}
	if s.ctx.stressLevel == "high" {
		return s.randFloat() > 0.5
	}
	return false
}

// RecordPlayerHesitation stores the hesitation and, when it drags past
// the threshold, sends one of the canned encouragements.
func (s *Store) RecordPlayerHesitation(h wire.HesitationData) {
	s.mu.Lock()
	hes := h
	s.ctx.lastHesitation = &hes
	long := h.DurationMs > hesitationThresholdMs
	var msg Message
	if long {
		msg = encouragements[int(s.randFloat()*float64(len(encouragements)))%len(encouragements)]
		msg.Type = "encouragement"
		msg.TriggeredBy = "hesitation"
		s.metrics.TrustBuildingAttempts++
	}
	s.mu.Unlock()

	if long {
		s.SendMessage(msg)
	}
}

// GenerateContextualMessage asks the backend to generate a reply to the
// given action, shipping the conversation context and the last three
// messages along.
func (s *Store) GenerateContextualMessage(action wire.ActionData) {
	s.mu.Lock()
	ctx := s.wireContextLocked()
	recent := s.recentWireMessagesLocked(3)
	s.mu.Unlock()

	req := wire.GenerateTomMessage{
		Type:      wire.TypeGenerateTomMessage,
		SessionID: s.sessionID,
		Context: wire.GenerationContext{
			Action:         action,
			Conversation:   ctx,
			RecentMessages: recent,
		},
	}
	if err := s.sock.Send(req); err != nil {
		slog.Warn("Failed to request agent message generation", "error", err)
		s.HandleGenerationError(err)
		return
	}
	slog.Debug("Agent generation requested", "action_type", action.Type)
}

// UpdateStressLevel sets the player's perceived stress level.
func (s *Store) UpdateStressLevel(level string) {
	s.mu.Lock()
	s.ctx.stressLevel = level
	s.mu.Unlock()
	slog.Debug("Stress level updated", "level", level)
}

// UpdateTrustLevel shifts the trust level by delta, clamped to [0,1].
func (s *Store) UpdateTrustLevel(delta float64) {
	s.mu.Lock()
	s.ctx.trustLevel = clamp01(s.ctx.trustLevel + delta)
	level := s.ctx.trustLevel
	s.mu.Unlock()
	slog.Debug("Trust level updated", "level", level)
}

// SetPlayerName records the player's name for personalization.
func (s *Store) SetPlayerName(name string) {
	s.mu.Lock()
	s.ctx.playerName = name
	s.mu.Unlock()
}

// absorbGeneratedContext updates the conversation state from a generated
// message: strong self-disclosure builds trust, strong empathy relieves
// high stress, and any mention of corruption is remembered.
func (s *Store) absorbGeneratedContext(data wire.TomMessageData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ec := data.EmotionalContext; ec != nil {
		if ec["self_disclosure"] > 0.5 {
			s.ctx.trustLevel = clamp01(s.ctx.trustLevel + 0.1)
		}
		if ec["empathy"] > 0.7 && s.ctx.stressLevel == "high" {
			s.ctx.stressLevel = "normal"
		}
	}
	if strings.Contains(strings.ToLower(data.Content), "corrupt") {
		s.ctx.corruptionMentioned = true
	}
}

// updateMetricsLocked counts a delivered message. Emotional markers are
// only counted on messages that carry an emotional context.
func (s *Store) updateMetricsLocked(msg Message) {
	s.metrics.TotalMessages++
	if s.typedCount > 0 {
		s.metrics.AverageTypingTime = s.typingTotal.Seconds() / float64(s.typedCount)
	}
	if msg.EmotionalContext == nil {
		return
	}
	if msg.EmotionalContext["self_disclosure"] > 0.5 {
		s.metrics.SelfDisclosuresMade++
	}
	if matches := emotionalMarkers.FindAllString(msg.Content, -1); matches != nil {
		s.metrics.EmotionalMarkersUsed += len(matches)
	}
}

// wireContextLocked converts the internal context to its wire form.
func (s *Store) wireContextLocked() wire.ConversationContext {
	actions := make([]wire.ActionData, len(s.ctx.recentActions))
	copy(actions, s.ctx.recentActions)
	return wire.ConversationContext{
		PlayerName:          s.ctx.playerName,
		StressLevel:         s.ctx.stressLevel,
		TrustLevel:          s.ctx.trustLevel,
		LastHesitation:      s.ctx.lastHesitation,
		RecentActions:       actions,
		CorruptionMentioned: s.ctx.corruptionMentioned,
	}
}

// recentWireMessagesLocked trims the last count delivered messages to
// their wire form.
func (s *Store) recentWireMessagesLocked(count int) []wire.RecentMessage {
	if count > len(s.messages) {
		count = len(s.messages)
	}
	out := make([]wire.RecentMessage, 0, count)
	for _, m := range s.messages[len(s.messages)-count:] {
		out = append(out, wire.RecentMessage{
			ID:        m.ID,
			Sender:    m.Sender,
			Content:   m.Content,
			Type:      m.Type,
			Timestamp: m.Timestamp,
		})
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
