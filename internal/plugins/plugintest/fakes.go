// Package plugintest provides in-memory fakes for every capability port.
package plugintest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
)

// FakeChat records chat operations in memory.
type FakeChat struct {
	mu sync.Mutex

	Channels     map[string]string // id -> name
	Archived     map[string]bool
	Topics       map[string]string
	Messages     []string
	Pinned       []string
	Ephemeral    []string
	Bookmarks    []string
	Invited      map[string][]string
	Activity     []plugins.ActivityRecord
	CreateErr    error
	ArchiveCalls int

	nextID int
}

// NewFakeChat creates an empty fake chat port.
func NewFakeChat() *FakeChat {
	return &FakeChat{
		Channels: make(map[string]string),
		Archived: make(map[string]bool),
		Topics:   make(map[string]string),
		Invited:  make(map[string][]string),
	}
}

func (f *FakeChat) Slug() string { return "fake-chat" }

func (f *FakeChat) CreateChannel(_ context.Context, name string, members []string) (*plugins.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextID++
	id := fmt.Sprintf("C%04d", f.nextID)
	f.Channels[id] = name
	f.Invited[id] = append(f.Invited[id], members...)
	return &plugins.Result{ResourceID: id, Weblink: "https://chat.example.com/" + id, ResourceType: "fake-chat"}, nil
}

func (f *FakeChat) Archive(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ArchiveCalls++
	f.Archived[channelID] = true
	return nil
}

func (f *FakeChat) Unarchive(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Archived[channelID] = false
	return nil
}

func (f *FakeChat) Rename(_ context.Context, channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Channels[channelID] = name
	return nil
}

func (f *FakeChat) Invite(_ context.Context, channelID string, emails []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Invited[channelID] = append(f.Invited[channelID], emails...)
	return nil
}

func (f *FakeChat) SetTopic(_ context.Context, channelID, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Topics[channelID] = topic
	return nil
}

func (f *FakeChat) Send(_ context.Context, channelID, text string, persist bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages = append(f.Messages, text)
	if persist {
		f.Pinned = append(f.Pinned, text)
	}
	return nil
}

func (f *FakeChat) SendEphemeral(_ context.Context, channelID, userEmail, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Ephemeral = append(f.Ephemeral, text)
	return nil
}

func (f *FakeChat) AddBookmark(_ context.Context, channelID, title, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Bookmarks = append(f.Bookmarks, link)
	return nil
}

func (f *FakeChat) FetchActivity(_ context.Context, channelID string) ([]plugins.ActivityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]plugins.ActivityRecord(nil), f.Activity...), nil
}

// FakeTicket records ticket operations.
type FakeTicket struct {
	mu sync.Mutex

	Tickets   map[string]plugins.TicketFields
	CreateErr error
	Updates   int
	nextID    int
}

// NewFakeTicket creates an empty fake ticket port.
func NewFakeTicket() *FakeTicket {
	return &FakeTicket{Tickets: make(map[string]plugins.TicketFields)}
}

func (f *FakeTicket) Slug() string { return "fake-ticket" }

func (f *FakeTicket) Create(_ context.Context, fields plugins.TicketFields) (*plugins.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextID++
	id := fmt.Sprintf("TICKET-%d", f.nextID)
	f.Tickets[id] = fields
	return &plugins.Result{ResourceID: id, Weblink: "https://tickets.example.com/" + id, ResourceType: "fake-ticket"}, nil
}

func (f *FakeTicket) Update(_ context.Context, resourceID string, fields plugins.TicketFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates++
	f.Tickets[resourceID] = fields
	return nil
}

func (f *FakeTicket) Delete(_ context.Context, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Tickets, resourceID)
	return nil
}

// FakeStorage records folder operations.
type FakeStorage struct {
	mu sync.Mutex

	Folders   map[string]string
	CreateErr error
	Deleted   []string
	nextID    int
}

// NewFakeStorage creates an empty fake storage port.
func NewFakeStorage() *FakeStorage {
	return &FakeStorage{Folders: make(map[string]string)}
}

func (f *FakeStorage) Slug() string { return "fake-storage" }

func (f *FakeStorage) CreateFolder(_ context.Context, parentID, name string) (*plugins.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextID++
	id := fmt.Sprintf("FOLDER-%d", f.nextID)
	f.Folders[id] = name
	return &plugins.Result{ResourceID: id, Weblink: "https://storage.example.com/" + id, ResourceType: "fake-storage"}, nil
}

func (f *FakeStorage) Move(_ context.Context, resourceID, newParentID string) error { return nil }

func (f *FakeStorage) Delete(_ context.Context, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, resourceID)
	delete(f.Folders, resourceID)
	return nil
}

func (f *FakeStorage) CopyFile(_ context.Context, fileID, folderID string) (*plugins.Result, error) {
	return &plugins.Result{ResourceID: fileID + "-copy", ResourceType: "fake-storage"}, nil
}

// FakeDocument records document operations.
type FakeDocument struct {
	mu sync.Mutex

	Documents    map[string]string
	Placeholders map[string]map[string]string
	CreateErr    error
	nextID       int
}

// NewFakeDocument creates an empty fake document port.
func NewFakeDocument() *FakeDocument {
	return &FakeDocument{
		Documents:    make(map[string]string),
		Placeholders: make(map[string]map[string]string),
	}
}

func (f *FakeDocument) Slug() string { return "fake-document" }

func (f *FakeDocument) CreateFromTemplate(_ context.Context, templateID, folderID, name string) (*plugins.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextID++
	id := fmt.Sprintf("DOC-%d", f.nextID)
	f.Documents[id] = name
	return &plugins.Result{ResourceID: id, Weblink: "https://docs.example.com/" + id, ResourceType: "fake-document"}, nil
}

func (f *FakeDocument) UpdatePlaceholders(_ context.Context, resourceID string, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Placeholders[resourceID] == nil {
		f.Placeholders[resourceID] = make(map[string]string)
	}
	for k, v := range values {
		f.Placeholders[resourceID][k] = v
	}
	return nil
}

func (f *FakeDocument) Move(_ context.Context, resourceID, folderID string) error { return nil }

func (f *FakeDocument) Delete(_ context.Context, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Documents, resourceID)
	return nil
}

// FakeConference records meeting operations.
type FakeConference struct {
	mu      sync.Mutex
	Created []string
	nextID  int
}

// NewFakeConference creates an empty fake conference port.
func NewFakeConference() *FakeConference { return &FakeConference{} }

func (f *FakeConference) Slug() string { return "fake-conference" }

func (f *FakeConference) Create(_ context.Context, name, title string, participants []string, duration time.Duration) (*plugins.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("CONF-%d", f.nextID)
	f.Created = append(f.Created, id)
	return &plugins.Result{ResourceID: id, Weblink: "https://meet.example.com/" + id, ResourceType: "fake-conference"}, nil
}

func (f *FakeConference) AddParticipant(_ context.Context, resourceID, email string) error { return nil }
func (f *FakeConference) RemoveParticipant(_ context.Context, resourceID, email string) error {
	return nil
}
func (f *FakeConference) Delete(_ context.Context, resourceID string) error { return nil }

// FakeGroup records contact-group operations.
type FakeGroup struct {
	mu     sync.Mutex
	Groups map[string][]string
	nextID int
}

// NewFakeGroup creates an empty fake group port.
func NewFakeGroup() *FakeGroup {
	return &FakeGroup{Groups: make(map[string][]string)}
}

func (f *FakeGroup) Slug() string { return "fake-group" }

func (f *FakeGroup) Create(_ context.Context, name string, members []string) (*plugins.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("GROUP-%d", f.nextID)
	f.Groups[id] = members
	return &plugins.Result{ResourceID: id, Weblink: "https://groups.example.com/" + id, ResourceType: "fake-group"}, nil
}

func (f *FakeGroup) Add(_ context.Context, resourceID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Groups[resourceID] = append(f.Groups[resourceID], email)
	return nil
}

func (f *FakeGroup) Remove(_ context.Context, resourceID, email string) error { return nil }
func (f *FakeGroup) Delete(_ context.Context, resourceID string) error        { return nil }

// FakeOncall resolves rotations from a static table and records pages.
type FakeOncall struct {
	mu sync.Mutex

	// Rotation maps service external_id -> current oncall email.
	Rotation map[string]string
	Pages    []string // service external_ids paged
}

// NewFakeOncall creates a fake oncall port with the given rotation table.
func NewFakeOncall(rotation map[string]string) *FakeOncall {
	if rotation == nil {
		rotation = make(map[string]string)
	}
	return &FakeOncall{Rotation: rotation}
}

func (f *FakeOncall) Slug() string { return "fake-oncall" }

func (f *FakeOncall) GetOncall(_ context.Context, serviceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.Rotation[serviceID]
	if !ok {
		return "", fmt.Errorf("no rotation for service %s", serviceID)
	}
	return email, nil
}

func (f *FakeOncall) Page(_ context.Context, serviceID, title, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pages = append(f.Pages, serviceID)
	return nil
}

// FakeEmail records sent email.
type FakeEmail struct {
	mu   sync.Mutex
	Sent []string // recipients
}

// NewFakeEmail creates an empty fake email port.
func NewFakeEmail() *FakeEmail { return &FakeEmail{} }

func (f *FakeEmail) Slug() string { return "fake-email" }

func (f *FakeEmail) Send(_ context.Context, recipient, subject, template string, kwargs map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, recipient)
	return nil
}

// FakeConsumer yields queued raw signals.
type FakeConsumer struct {
	mu     sync.Mutex
	Queued []plugins.RawSignal
}

// NewFakeConsumer creates a fake signal consumer.
func NewFakeConsumer(queued ...plugins.RawSignal) *FakeConsumer {
	return &FakeConsumer{Queued: queued}
}

func (f *FakeConsumer) Slug() string { return "fake-consumer" }

func (f *FakeConsumer) Consume(_ context.Context, batchSize int) ([]plugins.RawSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if batchSize > len(f.Queued) {
		batchSize = len(f.Queued)
	}
	batch := f.Queued[:batchSize]
	f.Queued = f.Queued[batchSize:]
	return batch, nil
}

// Push appends raw signals for later consumption.
func (f *FakeConsumer) Push(raw ...plugins.RawSignal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queued = append(f.Queued, raw...)
}

// FakeMonitor returns a fixed status per resource.
type FakeMonitor struct {
	mu       sync.Mutex
	Statuses map[string]string
}

// NewFakeMonitor creates a fake monitor port.
func NewFakeMonitor(statuses map[string]string) *FakeMonitor {
	if statuses == nil {
		statuses = make(map[string]string)
	}
	return &FakeMonitor{Statuses: statuses}
}

func (f *FakeMonitor) Slug() string { return "fake-monitor" }

func (f *FakeMonitor) Status(_ context.Context, resourceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.Statuses[resourceID]
	if !ok {
		return "", fmt.Errorf("unknown monitor %s", resourceID)
	}
	return s, nil
}

// FakeMfa records push challenges and hands out sequential push IDs.
type FakeMfa struct {
	mu     sync.Mutex
	Pushes []MfaPush
	Err    error
}

// MfaPush is one recorded push challenge.
type MfaPush struct {
	UserEmail string
	Action    string
}

// NewFakeMfa creates a fake mfa port.
func NewFakeMfa() *FakeMfa {
	return &FakeMfa{}
}

func (f *FakeMfa) Slug() string { return "fake-mfa" }

func (f *FakeMfa) SendPush(_ context.Context, userEmail, action string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.Pushes = append(f.Pushes, MfaPush{UserEmail: userEmail, Action: action})
	return fmt.Sprintf("push-%d", len(f.Pushes)), nil
}

// Seed registers every fake under the given registry for a project, using
// factory closures returning the shared instances so tests can assert on
// recorded calls.
type Seed struct {
	Chat       *FakeChat
	Ticket     *FakeTicket
	Storage    *FakeStorage
	Document   *FakeDocument
	Conference *FakeConference
	Group      *FakeGroup
	Oncall     *FakeOncall
	Email      *FakeEmail
	Consumer   *FakeConsumer
	Monitor    *FakeMonitor
	Mfa        *FakeMfa
}

// NewSeed builds a full set of fakes.
func NewSeed() *Seed {
	return &Seed{
		Chat:       NewFakeChat(),
		Ticket:     NewFakeTicket(),
		Storage:    NewFakeStorage(),
		Document:   NewFakeDocument(),
		Conference: NewFakeConference(),
		Group:      NewFakeGroup(),
		Oncall:     NewFakeOncall(map[string]string{"svc-default": "oncall@example.com"}),
		Email:      NewFakeEmail(),
		Consumer:   NewFakeConsumer(),
		Monitor:    NewFakeMonitor(nil),
		Mfa:        NewFakeMfa(),
	}
}

// Install registers factories and creates enabled plugin instances for
// the project so Registry.Resolve finds every capability.
func (s *Seed) Install(reg *plugins.Registry, db *gorm.DB, projectID uint) error {
	entries := []struct {
		capability string
		plugin     plugins.Plugin
	}{
		{plugins.CapabilityChat, s.Chat},
		{plugins.CapabilityTicket, s.Ticket},
		{plugins.CapabilityStorage, s.Storage},
		{plugins.CapabilityDocument, s.Document},
		{plugins.CapabilityConference, s.Conference},
		{plugins.CapabilityGroup, s.Group},
		{plugins.CapabilityOncall, s.Oncall},
		{plugins.CapabilityEmail, s.Email},
		{plugins.CapabilitySignalConsumer, s.Consumer},
		{plugins.CapabilityMonitor, s.Monitor},
		{plugins.CapabilityMFA, s.Mfa},
	}
	for _, e := range entries {
		p := e.plugin
		reg.Register(e.capability, p.Slug(), func(cfg database.JSONB) (plugins.Plugin, error) {
			return p, nil
		})
		instance := database.PluginInstance{
			ProjectID:  projectID,
			Capability: e.capability,
			Slug:       p.Slug(),
			Enabled:    true,
		}
		if err := db.Create(&instance).Error; err != nil {
			return err
		}
	}
	return nil
}
