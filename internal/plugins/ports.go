// Package plugins defines the typed capability ports the core consumes
// and the per-project registry that resolves the active instance for each
// capability.
//
// The core never talks to a vendor directly: every external side effect
// flows through one of these interfaces, and every port method returns a
// structured Result or an error carrying a retryable flag.
package plugins

import (
	"context"
	"time"

	"github.com/Netflix/dispatch-sub003/internal/database"
)

// Capability names the port a plugin instance provides.
const (
	CapabilityChat           = "chat"
	CapabilityTicket         = "ticket"
	CapabilityStorage        = "storage"
	CapabilityDocument       = "document"
	CapabilityConference     = "conference"
	CapabilityGroup          = "group"
	CapabilityOncall         = "oncall"
	CapabilityEmail          = "email"
	CapabilitySignalConsumer = "signal-consumer"
	CapabilityAI             = "ai"
	CapabilityMFA            = "mfa"
	CapabilityMonitor        = "monitor"
)

// Result is the structured return of a resource-creating port call.
type Result struct {
	ResourceID   string
	Weblink      string
	ResourceType string
}

// Plugin is the base every capability implementation satisfies.
type Plugin interface {
	Slug() string
}

// TicketFields is the updatable surface of an external ticket.
type TicketFields struct {
	Title       string
	Description string
	Status      string
	Priority    string
	Commander   string
	Weblink     string
}

// ActivityRecord is one participant interaction fetched from a
// conversation, consumed by the cost aggregator.
type ActivityRecord struct {
	UserEmail string
	At        time.Time
}

// ChatPlugin manages conversation channels.
type ChatPlugin interface {
	Plugin
	CreateChannel(ctx context.Context, name string, members []string) (*Result, error)
	Archive(ctx context.Context, channelID string) error
	Unarchive(ctx context.Context, channelID string) error
	Rename(ctx context.Context, channelID, name string) error
	Invite(ctx context.Context, channelID string, emails []string) error
	SetTopic(ctx context.Context, channelID, topic string) error
	Send(ctx context.Context, channelID, text string, persist bool) error
	SendEphemeral(ctx context.Context, channelID, userEmail, text string) error
	AddBookmark(ctx context.Context, channelID, title, link string) error
	FetchActivity(ctx context.Context, channelID string) ([]ActivityRecord, error)
}

// TicketPlugin manages external tickets.
type TicketPlugin interface {
	Plugin
	Create(ctx context.Context, fields TicketFields) (*Result, error)
	Update(ctx context.Context, resourceID string, fields TicketFields) error
	Delete(ctx context.Context, resourceID string) error
}

// StoragePlugin manages external storage folders.
type StoragePlugin interface {
	Plugin
	CreateFolder(ctx context.Context, parentID, name string) (*Result, error)
	Move(ctx context.Context, resourceID, newParentID string) error
	Delete(ctx context.Context, resourceID string) error
	CopyFile(ctx context.Context, fileID, folderID string) (*Result, error)
}

// DocumentPlugin manages external documents.
type DocumentPlugin interface {
	Plugin
	CreateFromTemplate(ctx context.Context, templateID, folderID, name string) (*Result, error)
	UpdatePlaceholders(ctx context.Context, resourceID string, values map[string]string) error
	Move(ctx context.Context, resourceID, folderID string) error
	Delete(ctx context.Context, resourceID string) error
}

// ConferencePlugin manages meeting rooms.
type ConferencePlugin interface {
	Plugin
	Create(ctx context.Context, name, title string, participants []string, duration time.Duration) (*Result, error)
	AddParticipant(ctx context.Context, resourceID, email string) error
	RemoveParticipant(ctx context.Context, resourceID, email string) error
	Delete(ctx context.Context, resourceID string) error
}

// GroupPlugin manages contact groups.
type GroupPlugin interface {
	Plugin
	Create(ctx context.Context, name string, members []string) (*Result, error)
	Add(ctx context.Context, resourceID, email string) error
	Remove(ctx context.Context, resourceID, email string) error
	Delete(ctx context.Context, resourceID string) error
}

// OncallPlugin resolves and pages oncall rotations.
type OncallPlugin interface {
	Plugin
	GetOncall(ctx context.Context, serviceID string) (string, error)
	Page(ctx context.Context, serviceID, title, description string) error
}

// EmailPlugin sends templated email.
type EmailPlugin interface {
	Plugin
	Send(ctx context.Context, recipient, subject, template string, kwargs map[string]interface{}) error
}

// RawSignal is one event pulled from an external producer.
type RawSignal struct {
	// MessageID identifies the event at the producer for acknowledgment.
	MessageID string
	Payload   database.JSONB
}

// SignalConsumerPlugin pulls batches of raw signals.
type SignalConsumerPlugin interface {
	Plugin
	Consume(ctx context.Context, batchSize int) ([]RawSignal, error)
}

// AIPlugin provides text completion and summarization.
type AIPlugin interface {
	Plugin
	Completion(ctx context.Context, prompt string) (string, error)
	Summarization(ctx context.Context, text string) (string, error)
}

// MfaPlugin sends push challenges.
type MfaPlugin interface {
	Plugin
	SendPush(ctx context.Context, userEmail, action string) (string, error)
}

// MonitorPlugin polls external detections.
type MonitorPlugin interface {
	Plugin
	Status(ctx context.Context, resourceID string) (string, error)
}
