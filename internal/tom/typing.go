package tom

import (
	"time"

	"github.com/remotelab/remote-client/internal/scheduler"
)

// typingState tracks the character-by-character delivery of one message.
type typingState struct {
	active    bool
	message   Message
	content   []rune
	index     int
	handle    scheduler.Handle
	startedAt time.Time
}

// keystrokeSoundRate is the share of typed characters that click.
const keystrokeSoundRate = 0.9

// startTyping begins simulating the human typing of msg. Each character
// is scheduled individually; the chain ends by committing the message.
func (s *Store) startTyping(msg Message) {
	s.mu.Lock()
	s.typing = typingState{
		active:    true,
		message:   msg,
		content:   []rune(msg.Content),
		startedAt: s.sched.Now(),
	}
	s.mu.Unlock()

	s.typingBus.Publish(true)
	s.typeStep()
}

// typeStep emits one character and schedules the next. Cancellation
// (disconnection, cleanup) clears the state between steps.
func (s *Store) typeStep() {
	s.mu.Lock()
	if !s.typing.active {
		s.mu.Unlock()
		return
	}
	if s.typing.index >= len(s.typing.content) {
		msg := s.typing.message
		s.typingTotal += s.sched.Now().Sub(s.typing.startedAt)
		s.typedCount++
		s.typing = typingState{}
		s.mu.Unlock()

		s.typingBus.Publish(false)
		s.commit(msg)
		return
	}

	ch := s.typing.content[s.typing.index]
	s.typing.index++
	delay := s.charDelay(ch)
	s.typing.handle = s.sched.After(delay, s.typeStep)
	playSound := s.notifier != nil && s.randFloat() < keystrokeSoundRate
	s.mu.Unlock()

	if playSound {
		s.notifier.Keystroke()
	}
}

// charDelay returns the simulated keystroke delay for ch: sentence
// punctuation pauses longest, then clause punctuation, then spaces, with
// natural jitter on top.
func (s *Store) charDelay(ch rune) time.Duration {
	charsPerSecond := float64(s.config.TypingSpeedWPM) * 5.0 / 60.0
	ms := 1000.0 / charsPerSecond

	switch ch {
	case '.', '!', '?':
		ms *= 3
	case ',', ';', ':':
		ms *= 2
	case ' ':
		ms *= 1.5
	}
	ms *= 0.8 + s.randFloat()*0.4

	return time.Duration(ms * float64(time.Millisecond))
}

// stopTypingLocked cancels an in-flight typing chain. Reports whether
// typing was active.
func (s *Store) stopTypingLocked() bool {
	if !s.typing.active {
		return false
	}
	if s.typing.handle != nil {
		s.typing.handle.Stop()
	}
	s.typing = typingState{}
	return true
}

// IsTyping reports whether the agent is mid-message.
func (s *Store) IsTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing.active
}

// TypingProgress returns the part of the current message typed so far.
func (s *Store) TypingProgress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.typing.active {
		return ""
	}
	return string(s.typing.content[:s.typing.index])
}
