// Package notifications renders templated messages and routes them to
// chat conversations and email recipients.
package notifications

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Netflix/dispatch-sub003/internal/plugins"
)

// MessageType identifies a notification template family.
type MessageType string

const (
	MessageIncidentWelcome      MessageType = "incident-welcome"
	MessageIncidentUpdate       MessageType = "incident-update"
	MessageIncidentClosed       MessageType = "incident-closed"
	MessageIncidentRoleChange   MessageType = "incident-role-change"
	MessageCaseWelcome          MessageType = "case-welcome"
	MessageCaseUpdate           MessageType = "case-update"
	MessageCaseEscalated        MessageType = "case-escalated"
	MessageSignalSnoozed        MessageType = "signal-snoozed"
	MessageEvergreenReminder    MessageType = "evergreen-reminder"
	MessageOncallShiftFeedback  MessageType = "oncall-shift-feedback"
	MessageParticipantEphemeral MessageType = "participant-ephemeral"
)

// dedupeWindow suppresses identical sends to the same destination fired
// in quick succession, typically from double-delivered webhooks.
const dedupeWindow = 5 * time.Second

// Message is one outbound notification.
type Message struct {
	Type     MessageType
	Template string
	// Vars feeds the template. Unknown keys render as empty strings.
	Vars map[string]string
	// Conversation is the chat channel ID; empty skips chat delivery.
	Conversation string
	// Recipients are email addresses; empty skips email delivery.
	Recipients []string
	Subject    string // email subject line
	Persist    bool   // pin in the conversation
	// EphemeralUser limits chat delivery to one member of the conversation.
	EphemeralUser string
}

// Dispatcher routes rendered messages through the project's chat and
// email plugins.
type Dispatcher struct {
	registry *plugins.Registry

	mu   sync.Mutex
	sent map[string]time.Time
	now  func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(registry *plugins.Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		sent:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Send renders the message and delivers it to every configured
// destination. Delivery failures to one destination are logged and do
// not block the others.
func (d *Dispatcher) Send(ctx context.Context, projectID uint, msg Message) error {
	text, err := Render(msg.Template, msg.Vars)
	if err != nil {
		return fmt.Errorf("render %s: %w", msg.Type, err)
	}

	if msg.Conversation != "" && !d.duplicate(msg.Type, msg.Conversation, text) {
		if err := d.sendChat(ctx, projectID, msg, text); err != nil {
			log.Printf("Chat delivery of %s failed: %v", msg.Type, err)
		}
	}
	for _, rcpt := range msg.Recipients {
		if d.duplicate(msg.Type, rcpt, text) {
			continue
		}
		if err := d.sendEmail(ctx, projectID, msg, rcpt, text); err != nil {
			log.Printf("Email delivery of %s to %s failed: %v", msg.Type, rcpt, err)
		}
	}
	return nil
}

func (d *Dispatcher) sendChat(ctx context.Context, projectID uint, msg Message, text string) error {
	chat, err := d.registry.Chat(projectID)
	if err != nil {
		return err
	}
	return plugins.Call(ctx, "chat.send", 0, func(ctx context.Context) error {
		if msg.EphemeralUser != "" {
			return chat.SendEphemeral(ctx, msg.Conversation, msg.EphemeralUser, text)
		}
		return chat.Send(ctx, msg.Conversation, text, msg.Persist)
	})
}

func (d *Dispatcher) sendEmail(ctx context.Context, projectID uint, msg Message, rcpt, text string) error {
	email, err := d.registry.Email(projectID)
	if err != nil {
		return err
	}
	subject := msg.Subject
	if subject == "" {
		subject = string(msg.Type)
	}
	return plugins.Call(ctx, "email.send", 0, func(ctx context.Context) error {
		return email.Send(ctx, rcpt, subject, text, nil)
	})
}

// duplicate records the send and reports whether an identical one went to
// the same destination inside the dedupe window.
func (d *Dispatcher) duplicate(mt MessageType, destination, text string) bool {
	sum := sha256.Sum256([]byte(text))
	key := string(mt) + "|" + destination + "|" + hex.EncodeToString(sum[:8])

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, at := range d.sent {
		if now.Sub(at) > dedupeWindow {
			delete(d.sent, k)
		}
	}
	if at, ok := d.sent[key]; ok && now.Sub(at) <= dedupeWindow {
		return true
	}
	d.sent[key] = now
	return false
}

// SortedVars returns the vars as "key: value" lines in key order, for
// templates that dump their whole context.
func SortedVars(vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, vars[k])
	}
	return b.String()
}
