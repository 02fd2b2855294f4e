package game

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/DevNeoLee/gameRefactor1-sub001/internal/room"
)

// startChat runs the group-chat countdown. A room already chatting is left
// alone so a repeated entry cannot start a second clock.
func (e *Engine) startChat(r *room.Room) {
	if _, busy := e.chatting[r.Name]; busy {
		e.logger.Warn("chat already running", "room", r.Name)
		return
	}
	e.chatting[r.Name] = struct{}{}
	e.countdown(r, room.TimerChat, e.settings.ChatDuration, MsgChatTimer, func() {
		e.endChat(r)
		e.broadcast(r, MsgChatEnded, map[string]any{"messages": len(r.ChatLog)})
		e.snapshot(r)
		if !e.advance(r) && r.IsLastStep() {
			e.finish(r)
		}
	})
}

func (e *Engine) endChat(r *room.Room) {
	delete(e.chatting, r.Name)
	for _, p := range r.Participants {
		delete(e.limiters, p.ID)
	}
}

func (e *Engine) chatMessage(r *room.Room, p *room.Participant, text string) error {
	if _, ok := e.chatting[r.Name]; !ok || r.CurrentStep() != room.StepGroupChat {
		return ErrInvalidState
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxChatRunes {
		text = string([]rune(text)[:maxChatRunes])
	}

	lim, ok := e.limiters[p.ID]
	if !ok {
		lim = rate.NewLimiter(e.chatRate, e.chatBurst)
		e.limiters[p.ID] = lim
	}
	now := e.clock.Now()
	if !lim.AllowN(now, 1) {
		return ErrRateLimited
	}

	entry := room.ChatEntry{
		ParticipantID: p.ID,
		Role:          p.Role,
		Text:          text,
		SentAt:        now,
	}
	r.ChatLog = append(r.ChatLog, entry)
	e.metrics.IncrChat()
	e.broadcast(r, MsgChat, entry)
	e.snapshot(r)
	return nil
}
