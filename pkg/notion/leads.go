package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/foundationrisk/soilrisk/internal/model"
)

// Property names of the leads database.
const (
	PropName     = "Name"
	PropLeadID   = "Lead ID"
	PropEmail    = "Email"
	PropPhone    = "Phone"
	PropAddress  = "Address"
	PropZip      = "Zip"
	PropSymptoms = "Symptoms"
	PropStatus   = "Status"
	PropSource   = "Source"
	PropCreated  = "Submitted"
)

// LeadMirror copies leads into a Notion database for the sales team.
type LeadMirror struct {
	client Client
	dbID   string
}

// NewLeadMirror returns a mirror writing to the given database.
func NewLeadMirror(c Client, dbID string) *LeadMirror {
	return &LeadMirror{client: c, dbID: dbID}
}

// MirrorLead creates a page for the lead unless one with the same lead ID
// already exists. It returns the page ID.
func (m *LeadMirror) MirrorLead(ctx context.Context, l *model.Lead) (string, error) {
	if l == nil {
		return "", eris.New("notion: nil lead")
	}

	existing, err := m.findByLeadID(ctx, l.ID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	page, err := m.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(m.dbID),
		},
		Properties: LeadProperties(l),
	})
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("notion: mirror lead %s", l.ID))
	}
	return string(page.ID), nil
}

func (m *LeadMirror) findByLeadID(ctx context.Context, id string) (string, error) {
	resp, err := m.client.QueryDatabase(ctx, m.dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropLeadID,
			RichText: &notionapi.TextFilterCondition{Equals: id},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrap(err, "notion: find lead")
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

// LeadProperties maps a lead onto database properties.
func LeadProperties(l *model.Lead) notionapi.Properties {
	title := l.Name
	if strings.TrimSpace(title) == "" {
		title = l.Email
	}

	props := notionapi.Properties{
		PropName:    notionapi.TitleProperty{Title: richText(title)},
		PropLeadID:  notionapi.RichTextProperty{RichText: richText(l.ID)},
		PropEmail:   notionapi.EmailProperty{Email: l.Email},
		PropPhone:   notionapi.PhoneNumberProperty{PhoneNumber: l.Phone},
		PropAddress: notionapi.RichTextProperty{RichText: richText(l.Address)},
		PropStatus:  notionapi.SelectProperty{Select: notionapi.Option{Name: string(l.Status)}},
		PropSource:  notionapi.SelectProperty{Select: notionapi.Option{Name: l.Source}},
	}
	if l.PostalCode != "" {
		props[PropZip] = notionapi.RichTextProperty{RichText: richText(l.PostalCode)}
	}
	if len(l.Symptoms) > 0 {
		opts := make([]notionapi.Option, 0, len(l.Symptoms))
		for _, s := range l.Symptoms {
			opts = append(opts, notionapi.Option{Name: s})
		}
		props[PropSymptoms] = notionapi.MultiSelectProperty{MultiSelect: opts}
	}
	if !l.CreatedAt.IsZero() {
		d := notionapi.Date(l.CreatedAt)
		props[PropCreated] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: s}}}
}
