package plugins

import (
	"fmt"
	"log"
	"sync"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/errs"
)

// Factory builds a plugin from its stored configuration.
type Factory func(cfg database.JSONB) (Plugin, error)

type factoryKey struct {
	capability string
	slug       string
}

type cacheKey struct {
	projectID  uint
	capability string
}

// Registry resolves the one active plugin instance per (project,
// capability). Resolution results are cached read-mostly; enabling or
// disabling an instance invalidates the project's entries atomically.
type Registry struct {
	db *gorm.DB

	mu        sync.RWMutex
	factories map[factoryKey]Factory
	cache     map[cacheKey]Plugin
}

// NewRegistry creates a registry backed by the given database.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{
		db:        db,
		factories: make(map[factoryKey]Factory),
		cache:     make(map[cacheKey]Plugin),
	}
}

// Register installs a factory for a (capability, vendor slug) pair.
func (r *Registry) Register(capability, slug string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factoryKey{capability, slug}] = f
}

// RegisteredSlugs lists the vendor slugs registered for a capability.
func (r *Registry) RegisteredSlugs(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var slugs []string
	for k := range r.factories {
		if k.capability == capability {
			slugs = append(slugs, k.slug)
		}
	}
	return slugs
}

// Resolve returns the active plugin for the project and capability, or a
// NotFoundError when no enabled instance (or no factory) exists.
func (r *Registry) Resolve(projectID uint, capability string) (Plugin, error) {
	key := cacheKey{projectID, capability}

	r.mu.RLock()
	if p, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	var instance database.PluginInstance
	err := r.db.Where("project_id = ? AND capability = ? AND enabled = ?",
		projectID, capability, true).First(&instance).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errs.NewNotFound("plugin", capability)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.cache[key]; ok {
		return p, nil
	}
	factory, ok := r.factories[factoryKey{capability, instance.Slug}]
	if !ok {
		return nil, errs.NewNotFound("plugin factory", instance.Slug)
	}
	p, err := factory(instance.Configuration)
	if err != nil {
		return nil, fmt.Errorf("configure plugin %s/%s: %w", capability, instance.Slug, err)
	}
	r.cache[key] = p
	log.Printf("Resolved %s plugin %q for project %d", capability, instance.Slug, projectID)
	return p, nil
}

// Invalidate drops cached resolutions for a project after its plugin
// configuration changes.
func (r *Registry) Invalidate(projectID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.cache {
		if k.projectID == projectID {
			delete(r.cache, k)
		}
	}
}

// Chat resolves the project's chat plugin.
func (r *Registry) Chat(projectID uint) (ChatPlugin, error) {
	p, err := r.Resolve(projectID, CapabilityChat)
	if err != nil {
		return nil, err
	}
	chat, ok := p.(ChatPlugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not implement chat", p.Slug())
	}
	return chat, nil
}

// Ticket resolves the project's ticket plugin.
func (r *Registry) Ticket(projectID uint) (TicketPlugin, error) {
	p, err := r.Resolve(projectID, CapabilityTicket)
	if err != nil {
		return nil, err
	}
	t, ok := p.(TicketPlugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not implement ticket", p.Slug())
	}
	return t, nil
}

// Storage resolves the project's storage plugin.
func (r *Registry) Storage(projectID uint) (StoragePlugin, error) {
	p, err := r.Resolve(projectID, CapabilityStorage)
	if err != nil {
		return nil, err
	}
	s, ok := p.(StoragePlugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not implement storage", p.Slug())
	}
	return s, nil
}

// Document resolves the project's document plugin.
func (r *Registry) Document(projectID uint) (DocumentPlugin, error) {
	p, err := r.Resolve(projectID, CapabilityDocument)
	if err != nil {
		return nil, err
	}
	d, ok := p.(DocumentPlugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not implement document", p.Slug())
	}
	return d, nil
}

// Conference resolves the project's conference plugin.
func (r *Registry) Conference(projectID uint) (ConferencePlugin, error) {
	p, err := r.Resolve(projectID, CapabilityConference)
	if err != nil {
		return nil, err
	}
	c, ok := p.(ConferencePlugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not implement conference", p.Slug())
	}
	return c, nil
}

// Group resolves the project's contact-group plugin.
func (r *Registry) Group(projectID uint) (GroupPlugin, error) {
	p, err := r.Resolve(projectID, CapabilityGroup)
	if err != nil {
		return nil, err
	}
	g, ok := p.(GroupPlugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not implement group", p.Slug())
	}
	return g, nil
}

// Oncall resolves the project's oncall plugin.
func (r *Registry) Oncall(projectID uint) (OncallPlugin, error) {
	p, err := r.Resolve(projectID, CapabilityOncall)
	if err != nil {
		return nil, err
	}
	o, ok := p.(OncallPlugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not implement oncall", p.Slug())
	}
	return o, nil
}

// Email resolves the project's email plugin.
func (r *Registry) Email(projectID uint) (EmailPlugin, error) {
	p, err := r.Resolve(projectID, CapabilityEmail)
	if err != nil {
		return nil, err
	}
	e, ok := p.(EmailPlugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not implement email", p.Slug())
	}
	return e, nil
}

// SignalConsumer resolves the project's signal-consumer plugin.
func (r *Registry) SignalConsumer(projectID uint) (SignalConsumerPlugin, error) {
	p, err := r.Resolve(projectID, CapabilitySignalConsumer)
	if err != nil {
		return nil, err
	}
	s, ok := p.(SignalConsumerPlugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not implement signal-consumer", p.Slug())
	}
	return s, nil
}

// Monitor resolves the project's monitor plugin.
func (r *Registry) Monitor(projectID uint) (MonitorPlugin, error) {
	p, err := r.Resolve(projectID, CapabilityMonitor)
	if err != nil {
		return nil, err
	}
	m, ok := p.(MonitorPlugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not implement monitor", p.Slug())
	}
	return m, nil
}

// Mfa resolves the project's mfa plugin.
func (r *Registry) Mfa(projectID uint) (MfaPlugin, error) {
	p, err := r.Resolve(projectID, CapabilityMFA)
	if err != nil {
		return nil, err
	}
	m, ok := p.(MfaPlugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not implement mfa", p.Slug())
	}
	return m, nil
}
