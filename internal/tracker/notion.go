package tracker

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// notionAPI is the subset of the Notion client this adapter uses.
type notionAPI interface {
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// notionClient wraps *notionapi.Client with Notion's 3 req/s rate limit.
type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	page, err := c.inner.Page.Create(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "notion: create page")
	}
	return page, nil
}

// NotionTracker files incidents as pages in a Notion database.
type NotionTracker struct {
	client     notionAPI
	databaseID string
}

// NewNotionTracker creates a NotionTracker for the given integration token
// and incident database.
func NewNotionTracker(token, databaseID string) *NotionTracker {
	return &NotionTracker{
		client: &notionClient{
			inner:   notionapi.NewClient(notionapi.Token(token)),
			limiter: rate.NewLimiter(3, 1),
		},
		databaseID: databaseID,
	}
}

// File creates the incident page and returns its URL.
func (t *NotionTracker) File(ctx context.Context, issue Issue) (string, error) {
	labels := make([]notionapi.Option, len(issue.Labels))
	for i, l := range issue.Labels {
		labels[i] = notionapi.Option{Name: l}
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(t.databaseID),
		},
		Properties: notionapi.Properties{
			"Name": notionapi.TitleProperty{
				Title: richText(issue.Title),
			},
			"Labels": notionapi.MultiSelectProperty{
				MultiSelect: labels,
			},
			"Failure Mode": notionapi.SelectProperty{
				Select: notionapi.Option{Name: string(issue.FailureMode)},
			},
			"Impact": notionapi.SelectProperty{
				Select: notionapi.Option{Name: string(issue.Impact)},
			},
			"Assignees": notionapi.RichTextProperty{
				RichText: richText(strings.Join(issue.Assignees, ", ")),
			},
			"Model / Prompt": notionapi.RichTextProperty{
				RichText: richText(issue.ModelPromptVersion),
			},
		},
		Children: []notionapi.Block{
			paragraph("Observed: " + issue.ObservedText),
			paragraph("Expected: " + issue.ExpectedTruth),
			paragraph("System of record: " + strings.Join(issue.SystemOfRecordLinks, ", ")),
			paragraph("Reproduction: " + issue.Reproduction),
			paragraph("Fix: " + issue.Fix),
		},
	}

	page, err := t.client.CreatePage(ctx, req)
	if err != nil {
		return "", eris.Wrap(err, "tracker: file notion incident")
	}
	return page.URL, nil
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Text: &notionapi.Text{Content: s}},
	}
}

func paragraph(s string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{
			RichText: richText(s),
		},
	}
}
