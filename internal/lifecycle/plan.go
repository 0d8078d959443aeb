package lifecycle

import (
	"context"
	"fmt"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/orchestrator"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
)

// planInput carries everything the resource steps need beyond the subject
// row itself.
type planInput struct {
	Name           string
	Title          string
	Description    string
	Status         string
	PriorityName   string
	CommanderEmail string
	Members        []string
	TeamEmails     []string
	// DocumentTemplate is the external template ID for the working document.
	DocumentTemplate string
}

// incidentPlan is the ordered set of collaboration resources stood up for
// an incident. The ticket and the conversation are required; everything
// else is best-effort. The ticket is retained on failure so responders
// keep a tracking handle even when later steps roll back.
func (s *IncidentService) incidentPlan(projectID uint, in planInput) []orchestrator.Step {
	reg := s.registry
	return []orchestrator.Step{
		{
			Kind:            database.ResourceTicket,
			Required:        true,
			RetainOnFailure: true,
			Create: func(ctx context.Context, deps orchestrator.Created) (*plugins.Result, error) {
				ticket, err := reg.Ticket(projectID)
				if err != nil {
					return nil, err
				}
				var res *plugins.Result
				err = plugins.Call(ctx, "ticket.create", 0, func(ctx context.Context) error {
					var callErr error
					res, callErr = ticket.Create(ctx, plugins.TicketFields{
						Title:       in.Title,
						Description: in.Description,
						Status:      in.Status,
						Priority:    in.PriorityName,
						Commander:   in.CommanderEmail,
					})
					return callErr
				})
				return res, err
			},
			Update: func(ctx context.Context, res *database.Resource, deps orchestrator.Created) error {
				ticket, err := reg.Ticket(projectID)
				if err != nil {
					return err
				}
				return plugins.Call(ctx, "ticket.update", 0, func(ctx context.Context) error {
					return ticket.Update(ctx, res.ResourceID, plugins.TicketFields{
						Title:       in.Title,
						Description: in.Description,
						Status:      in.Status,
						Priority:    in.PriorityName,
						Commander:   in.CommanderEmail,
					})
				})
			},
		},
		{
			Kind:      database.ResourceConversation,
			DependsOn: []database.ResourceKind{database.ResourceTicket},
			Required:  true,
			Create: func(ctx context.Context, deps orchestrator.Created) (*plugins.Result, error) {
				chat, err := reg.Chat(projectID)
				if err != nil {
					return nil, err
				}
				var res *plugins.Result
				err = plugins.Call(ctx, "chat.create_channel", 0, func(ctx context.Context) error {
					var callErr error
					res, callErr = chat.CreateChannel(ctx, in.Name, in.Members)
					return callErr
				})
				return res, err
			},
			Update: func(ctx context.Context, res *database.Resource, deps orchestrator.Created) error {
				chat, err := reg.Chat(projectID)
				if err != nil {
					return err
				}
				return plugins.Call(ctx, "chat.invite", 0, func(ctx context.Context) error {
					return chat.Invite(ctx, res.ResourceID, in.Members)
				})
			},
			Teardown: func(ctx context.Context, res *database.Resource) error {
				chat, err := reg.Chat(projectID)
				if err != nil {
					return err
				}
				return plugins.Call(ctx, "chat.archive", 0, func(ctx context.Context) error {
					return chat.Archive(ctx, res.ResourceID)
				})
			},
		},
		{
			Kind:            database.ResourceStorage,
			RetainOnFailure: true,
			Create: func(ctx context.Context, deps orchestrator.Created) (*plugins.Result, error) {
				storage, err := reg.Storage(projectID)
				if err != nil {
					return nil, err
				}
				var res *plugins.Result
				err = plugins.Call(ctx, "storage.create_folder", 0, func(ctx context.Context) error {
					var callErr error
					res, callErr = storage.CreateFolder(ctx, "", in.Name)
					return callErr
				})
				return res, err
			},
		},
		{
			Kind:            database.ResourceIncidentDocument,
			DependsOn:       []database.ResourceKind{database.ResourceStorage},
			RetainOnFailure: true,
			Create: func(ctx context.Context, deps orchestrator.Created) (*plugins.Result, error) {
				folder := deps[database.ResourceStorage]
				if folder == nil {
					return nil, fmt.Errorf("no storage folder to hold the document")
				}
				doc, err := reg.Document(projectID)
				if err != nil {
					return nil, err
				}
				var res *plugins.Result
				err = plugins.Call(ctx, "document.create", 0, func(ctx context.Context) error {
					var callErr error
					res, callErr = doc.CreateFromTemplate(ctx, in.DocumentTemplate, folder.ResourceID, in.Name)
					return callErr
				})
				if err != nil {
					return nil, err
				}
				fillErr := plugins.Call(ctx, "document.fill", 0, func(ctx context.Context) error {
					return doc.UpdatePlaceholders(ctx, res.ResourceID, map[string]string{
						"name":        in.Name,
						"title":       in.Title,
						"description": in.Description,
						"commander":   in.CommanderEmail,
					})
				})
				if fillErr != nil {
					// Placeholders are cosmetic; the document itself stands.
					return res, nil
				}
				return res, nil
			},
		},
		{
			Kind: database.ResourceTacticalGroup,
			Create: func(ctx context.Context, deps orchestrator.Created) (*plugins.Result, error) {
				group, err := reg.Group(projectID)
				if err != nil {
					return nil, err
				}
				var res *plugins.Result
				err = plugins.Call(ctx, "group.create", 0, func(ctx context.Context) error {
					var callErr error
					res, callErr = group.Create(ctx, in.Name+"-tactical", in.Members)
					return callErr
				})
				return res, err
			},
			Update: func(ctx context.Context, res *database.Resource, deps orchestrator.Created) error {
				group, err := reg.Group(projectID)
				if err != nil {
					return err
				}
				for _, email := range in.Members {
					member := email
					if err := plugins.Call(ctx, "group.add", 0, func(ctx context.Context) error {
						return group.Add(ctx, res.ResourceID, member)
					}); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Kind: database.ResourceNotificationsGroup,
			Create: func(ctx context.Context, deps orchestrator.Created) (*plugins.Result, error) {
				group, err := reg.Group(projectID)
				if err != nil {
					return nil, err
				}
				members := append(append([]string{}, in.Members...), in.TeamEmails...)
				var res *plugins.Result
				err = plugins.Call(ctx, "group.create", 0, func(ctx context.Context) error {
					var callErr error
					res, callErr = group.Create(ctx, in.Name+"-notifications", members)
					return callErr
				})
				return res, err
			},
		},
		{
			Kind:      database.ResourceConference,
			DependsOn: []database.ResourceKind{database.ResourceTacticalGroup},
			Create: func(ctx context.Context, deps orchestrator.Created) (*plugins.Result, error) {
				conf, err := reg.Conference(projectID)
				if err != nil {
					return nil, err
				}
				var res *plugins.Result
				err = plugins.Call(ctx, "conference.create", 0, func(ctx context.Context) error {
					var callErr error
					res, callErr = conf.Create(ctx, in.Name, in.Title, in.Members, 0)
					return callErr
				})
				return res, err
			},
		},
	}
}

// reviewDocumentStep provisions the post-incident review document into the
// incident's storage folder. It runs as its own single-step plan when the
// incident goes stable.
func (s *IncidentService) reviewDocumentStep(projectID uint, in planInput, folder *database.Resource) orchestrator.Step {
	reg := s.registry
	return orchestrator.Step{
		Kind:            database.ResourceReviewDocument,
		RetainOnFailure: true,
		Create: func(ctx context.Context, deps orchestrator.Created) (*plugins.Result, error) {
			if folder == nil {
				return nil, fmt.Errorf("no storage folder to hold the review document")
			}
			doc, err := reg.Document(projectID)
			if err != nil {
				return nil, err
			}
			var res *plugins.Result
			err = plugins.Call(ctx, "document.create", 0, func(ctx context.Context) error {
				var callErr error
				res, callErr = doc.CreateFromTemplate(ctx, in.DocumentTemplate, folder.ResourceID, in.Name+"-review")
				return callErr
			})
			return res, err
		},
	}
}
