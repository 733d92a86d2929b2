package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridocs/reviewctl/internal/model"
)

func sampleIncident() *model.Incident {
	return &model.Incident{
		ID:                 "inc-1",
		RecordID:           "rec-1",
		ContentID:          "docs/retry-policy.md",
		Severity:           model.RiskP1,
		FailureMode:        model.FailureWrongDefault,
		Impact:             model.ImpactCustomerMinor,
		ObservedText:       "timeout defaults to 60s",
		ExpectedTruth:      "timeout defaults to 30s",
		SourceLinks:        []string{"https://config-service/schema"},
		ModelPromptVersion: "claude-sonnet-4-5 / v3",
	}
}

func TestFromIncident(t *testing.T) {
	issue := FromIncident(sampleIncident(), []string{"hallucination"}, []string{"docs-team"})

	assert.Equal(t, "[P1] hallucination in docs/retry-policy.md: wrong_default", issue.Title)
	assert.Equal(t, []string{"hallucination"}, issue.Labels)
	assert.Equal(t, []string{"docs-team"}, issue.Assignees)
	assert.Equal(t, "timeout defaults to 60s", issue.ObservedText)
	assert.Equal(t, "timeout defaults to 30s", issue.ExpectedTruth)
	assert.Equal(t, []string{"https://config-service/schema"}, issue.SystemOfRecordLinks)
	assert.Equal(t, "claude-sonnet-4-5 / v3", issue.ModelPromptVersion)
}

// --- Webhook ---

func TestWebhookTracker_File(t *testing.T) {
	var received Issue
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://issues.example/42"})
	}))
	defer srv.Close()

	trk := NewWebhookTracker(srv.URL)
	ref, err := trk.File(context.Background(), FromIncident(sampleIncident(), nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "https://issues.example/42", ref)
	assert.Equal(t, model.FailureWrongDefault, received.FailureMode)
}

func TestWebhookTracker_File_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"ref": "ISSUE-7"})
	}))
	defer srv.Close()

	trk := NewWebhookTracker(srv.URL)
	ref, err := trk.File(context.Background(), Issue{Title: "transient"})
	require.NoError(t, err)
	assert.Equal(t, "ISSUE-7", ref)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookTracker_File_PermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	trk := NewWebhookTracker(srv.URL)
	_, err := trk.File(context.Background(), Issue{Title: "rejected"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

// --- Notion ---

// fakeNotion captures the page create request.
type fakeNotion struct {
	req *notionapi.PageCreateRequest
	err error
}

func (f *fakeNotion) CreatePage(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &notionapi.Page{URL: "https://notion.so/incident-page"}, nil
}

func TestNotionTracker_File(t *testing.T) {
	fake := &fakeNotion{}
	trk := &NotionTracker{client: fake, databaseID: "db-123"}

	issue := FromIncident(sampleIncident(), []string{"hallucination", "docs"}, []string{"docs-team"})
	ref, err := trk.File(context.Background(), issue)
	require.NoError(t, err)
	assert.Equal(t, "https://notion.so/incident-page", ref)

	require.NotNil(t, fake.req)
	assert.Equal(t, notionapi.DatabaseID("db-123"), fake.req.Parent.DatabaseID)

	title, ok := fake.req.Properties["Name"].(notionapi.TitleProperty)
	require.True(t, ok)
	require.Len(t, title.Title, 1)
	assert.Equal(t, issue.Title, title.Title[0].Text.Content)

	labels, ok := fake.req.Properties["Labels"].(notionapi.MultiSelectProperty)
	require.True(t, ok)
	assert.Len(t, labels.MultiSelect, 2)

	assert.Len(t, fake.req.Children, 5)
}

func TestNotionTracker_File_Error(t *testing.T) {
	fake := &fakeNotion{err: eris.New("unauthorized")}
	trk := &NotionTracker{client: fake, databaseID: "db-123"}

	_, err := trk.File(context.Background(), Issue{Title: "denied"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file notion incident")
}
