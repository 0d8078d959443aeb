// Package slackchat implements the chat capability port on Slack.
package slackchat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/errs"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
)

const pluginSlug = "slack"

// Plugin is the Slack-backed chat port.
type Plugin struct {
	client *slack.Client

	mu         sync.RWMutex
	teamDomain string
	userCache  map[string]string // email -> user ID
	emailCache map[string]string // user ID -> email
}

// New builds the plugin from a stored configuration blob. The only
// required key is bot_token.
func New(cfg database.JSONB) (plugins.Plugin, error) {
	token, _ := cfg["bot_token"].(string)
	if token == "" {
		return nil, fmt.Errorf("slack chat plugin requires bot_token")
	}
	return &Plugin{
		client:     slack.New(token),
		userCache:  make(map[string]string),
		emailCache: make(map[string]string),
	}, nil
}

// Slug identifies the vendor.
func (p *Plugin) Slug() string {
	return pluginSlug
}

// wrap classifies a Slack API error: rate limits are retryable, anything
// else is treated as permanent.
func wrap(msg string, err error) error {
	var rle *slack.RateLimitedError
	retryable := errors.As(err, &rle)
	return errs.NewPluginError(pluginSlug, msg, retryable, err)
}

// CreateChannel creates a private channel and invites the given members.
func (p *Plugin) CreateChannel(ctx context.Context, name string, members []string) (*plugins.Result, error) {
	channel, err := p.client.CreateConversationContext(ctx, slack.CreateConversationParams{
		ChannelName: sanitizeChannelName(name),
		IsPrivate:   true,
	})
	if err != nil {
		return nil, wrap("create channel", err)
	}
	if len(members) > 0 {
		if err := p.Invite(ctx, channel.ID, members); err != nil {
			log.Printf("Failed to invite initial members to %s: %v", channel.ID, err)
		}
	}
	return &plugins.Result{
		ResourceID:   channel.ID,
		Weblink:      p.weblink(ctx, channel.ID),
		ResourceType: pluginSlug,
	}, nil
}

// Archive archives the channel. Already-archived channels are a no-op.
func (p *Plugin) Archive(ctx context.Context, channelID string) error {
	err := p.client.ArchiveConversationContext(ctx, channelID)
	if err != nil && strings.Contains(err.Error(), "already_archived") {
		return nil
	}
	if err != nil {
		return wrap("archive channel", err)
	}
	return nil
}

// Unarchive reopens an archived channel.
func (p *Plugin) Unarchive(ctx context.Context, channelID string) error {
	err := p.client.UnArchiveConversationContext(ctx, channelID)
	if err != nil && strings.Contains(err.Error(), "not_archived") {
		return nil
	}
	if err != nil {
		return wrap("unarchive channel", err)
	}
	return nil
}

// Rename renames the channel.
func (p *Plugin) Rename(ctx context.Context, channelID, name string) error {
	if _, err := p.client.RenameConversationContext(ctx, channelID, sanitizeChannelName(name)); err != nil {
		return wrap("rename channel", err)
	}
	return nil
}

// Invite adds users (by email) to the channel. Unknown emails are skipped.
func (p *Plugin) Invite(ctx context.Context, channelID string, emails []string) error {
	var ids []string
	for _, email := range emails {
		id, err := p.userID(ctx, email)
		if err != nil {
			log.Printf("Skipping invite for unknown user %s: %v", email, err)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := p.client.InviteUsersToConversationContext(ctx, channelID, ids...)
	if err != nil && strings.Contains(err.Error(), "already_in_channel") {
		return nil
	}
	if err != nil {
		return wrap("invite users", err)
	}
	return nil
}

// SetTopic updates the channel topic.
func (p *Plugin) SetTopic(ctx context.Context, channelID, topic string) error {
	if _, err := p.client.SetTopicOfConversationContext(ctx, channelID, topic); err != nil {
		return wrap("set topic", err)
	}
	return nil
}

// Send posts a message; persist pins it.
func (p *Plugin) Send(ctx context.Context, channelID, text string, persist bool) error {
	_, ts, err := p.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return wrap("post message", err)
	}
	if persist {
		if err := p.client.AddPinContext(ctx, channelID, slack.ItemRef{Channel: channelID, Timestamp: ts}); err != nil {
			log.Printf("Failed to pin message in %s: %v", channelID, err)
		}
	}
	return nil
}

// SendEphemeral posts a message visible to one user.
func (p *Plugin) SendEphemeral(ctx context.Context, channelID, userEmail, text string) error {
	id, err := p.userID(ctx, userEmail)
	if err != nil {
		return wrap("resolve user", err)
	}
	if _, err := p.client.PostEphemeralContext(ctx, channelID, id, slack.MsgOptionText(text, false)); err != nil {
		return wrap("post ephemeral", err)
	}
	return nil
}

// AddBookmark attaches a link bookmark to the channel.
func (p *Plugin) AddBookmark(ctx context.Context, channelID, title, link string) error {
	_, err := p.client.AddBookmarkContext(ctx, channelID, slack.AddBookmarkParameters{
		Title: title,
		Type:  "link",
		Link:  link,
	})
	if err != nil {
		return wrap("add bookmark", err)
	}
	return nil
}

// FetchActivity returns per-message participant interactions from the
// channel history, used by the cost aggregator.
func (p *Plugin) FetchActivity(ctx context.Context, channelID string) ([]plugins.ActivityRecord, error) {
	resp, err := p.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     500,
	})
	if err != nil {
		return nil, wrap("fetch history", err)
	}

	var records []plugins.ActivityRecord
	for _, msg := range resp.Messages {
		if msg.User == "" {
			continue
		}
		email, err := p.userEmail(ctx, msg.User)
		if err != nil {
			continue
		}
		at, err := parseSlackTimestamp(msg.Timestamp)
		if err != nil {
			continue
		}
		records = append(records, plugins.ActivityRecord{UserEmail: email, At: at})
	}
	return records, nil
}

func (p *Plugin) userID(ctx context.Context, email string) (string, error) {
	p.mu.RLock()
	if id, ok := p.userCache[email]; ok {
		p.mu.RUnlock()
		return id, nil
	}
	p.mu.RUnlock()

	user, err := p.client.GetUserByEmailContext(ctx, email)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.userCache[email] = user.ID
	p.emailCache[user.ID] = user.Profile.Email
	p.mu.Unlock()
	return user.ID, nil
}

func (p *Plugin) userEmail(ctx context.Context, userID string) (string, error) {
	p.mu.RLock()
	if email, ok := p.emailCache[userID]; ok {
		p.mu.RUnlock()
		return email, nil
	}
	p.mu.RUnlock()

	user, err := p.client.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.emailCache[userID] = user.Profile.Email
	if user.Profile.Email != "" {
		p.userCache[user.Profile.Email] = userID
	}
	p.mu.Unlock()
	return user.Profile.Email, nil
}

func (p *Plugin) weblink(ctx context.Context, channelID string) string {
	p.mu.RLock()
	domain := p.teamDomain
	p.mu.RUnlock()

	if domain == "" {
		team, err := p.client.GetTeamInfoContext(ctx)
		if err != nil {
			return ""
		}
		p.mu.Lock()
		p.teamDomain = team.Domain
		p.mu.Unlock()
		domain = team.Domain
	}
	return fmt.Sprintf("https://%s.slack.com/archives/%s", domain, channelID)
}

// sanitizeChannelName lowercases and strips characters Slack rejects.
func sanitizeChannelName(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '.':
			b.WriteRune('-')
		}
	}
	s := b.String()
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}

func parseSlackTimestamp(ts string) (time.Time, error) {
	parts := strings.SplitN(ts, ".", 2)
	secs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0), nil
}
