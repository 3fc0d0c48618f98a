package services

import (
	"errors"
	"sync"
	"time"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"

	"meetcore/pkg/utils"

	"go.uber.org/zap"
)

var (
	errChatDisabled     = errors.New("chat is disabled for this meeting")
	errEmptyChatMessage = errors.New("chat message is empty")
)

// Chat relays messages over the signaling channel and keeps the in-memory
// history for the UI. History lives and dies with the session.
type Chat struct {
	mu      sync.Mutex
	history []domain.ChatMessage

	localID   domain.ParticipantID
	localName string
	enabled   bool

	transport ports.SignalTransport
	sink      ports.EventSink
	logger    *zap.SugaredLogger
}

func NewChat(localID domain.ParticipantID, localName string, enabled bool, transport ports.SignalTransport, sink ports.EventSink, logger *zap.SugaredLogger) *Chat {
	return &Chat{
		localID:   localID,
		localName: localName,
		enabled:   enabled,
		transport: transport,
		sink:      sink,
		logger:    logger,
	}
}

func (c *Chat) Send(body string) (domain.ChatMessage, error) {
	if !c.enabled {
		return domain.ChatMessage{}, errChatDisabled
	}
	body = utils.SanitizeString(body)
	if body == "" {
		return domain.ChatMessage{}, errEmptyChatMessage
	}
	msg := domain.ChatMessage{
		ID:       utils.NewChatMessageID(),
		SenderID: c.localID,
		Sender:   c.localName,
		Body:     body,
		SentAt:   time.Now(),
		IsLocal:  true,
	}
	payload := domain.ChatPayload{
		MessageID:     msg.ID,
		ParticipantID: msg.SenderID,
		Sender:        msg.Sender,
		Body:          msg.Body,
		SentAt:        msg.SentAt.UnixMilli(),
	}
	if err := c.transport.Send(domain.InvokeSendChatMessage, "", payload); err != nil {
		return domain.ChatMessage{}, err
	}
	c.mu.Lock()
	c.history = append(c.history, msg)
	c.mu.Unlock()
	return msg, nil
}

// HandleInbound records a remote message. The local echo is filtered in
// case the server fans the message back to its sender.
func (c *Chat) HandleInbound(p domain.ChatPayload) {
	if p.ParticipantID == c.localID {
		return
	}
	msg := domain.ChatMessage{
		ID:       p.MessageID,
		SenderID: p.ParticipantID,
		Sender:   p.Sender,
		Body:     utils.SanitizeString(p.Body),
		SentAt:   time.UnixMilli(p.SentAt),
	}
	c.mu.Lock()
	c.history = append(c.history, msg)
	c.mu.Unlock()
	c.logger.Debugw("chat message received",
		"sender", msg.Sender, "preview", utils.TruncateString(msg.Body, 64))
	c.sink.OnChatMessage(msg)
}

func (c *Chat) History() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatMessage, len(c.history))
	copy(out, c.history)
	return out
}
