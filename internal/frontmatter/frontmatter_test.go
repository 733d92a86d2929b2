package frontmatter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridocs/reviewctl/internal/model"
)

const doc = `---
ai_generated: partial
sources:
  - https://config-service/docs
risk_level: P2
---
# Retry Policy

Body text here.
`

func TestParse(t *testing.T) {
	t.Run("with front matter", func(t *testing.T) {
		fields, body, err := Parse([]byte(doc))
		require.NoError(t, err)
		assert.Equal(t, "partial", fields["ai_generated"])
		assert.Equal(t, "P2", fields["risk_level"])
		assert.Equal(t, []any{"https://config-service/docs"}, fields["sources"])
		assert.Equal(t, "# Retry Policy\n\nBody text here.\n", body)
	})

	t.Run("without front matter", func(t *testing.T) {
		fields, body, err := Parse([]byte("plain body\n"))
		require.NoError(t, err)
		assert.Empty(t, fields)
		assert.Equal(t, "plain body\n", body)
	})

	t.Run("bare delimiter only", func(t *testing.T) {
		fields, body, err := Parse([]byte("---"))
		require.NoError(t, err)
		assert.Empty(t, fields)
		assert.Equal(t, "---", body)
	})

	t.Run("unterminated block", func(t *testing.T) {
		_, _, err := Parse([]byte("---\nai_generated: full\nno closing delimiter"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unterminated")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, _, err := Parse([]byte("---\n\t: broken\n---\nbody"))
		require.Error(t, err)
	})
}

func TestApply(t *testing.T) {
	meta := Meta{
		AIGenerated: "full",
		Sources:     []string{"https://config-service/schema"},
		RiskLevel:   "P0",
		Model:       "claude-sonnet-4-5",
	}

	t.Run("replaces existing block", func(t *testing.T) {
		out, err := Apply([]byte(doc), meta)
		require.NoError(t, err)

		fields, body, err := Parse(out)
		require.NoError(t, err)
		assert.Equal(t, "full", fields["ai_generated"])
		assert.Equal(t, "P0", fields["risk_level"])
		assert.Equal(t, "# Retry Policy\n\nBody text here.\n", body)
	})

	t.Run("prepends to plain document", func(t *testing.T) {
		out, err := Apply([]byte("just a body\n"), meta)
		require.NoError(t, err)

		fields, body, err := Parse(out)
		require.NoError(t, err)
		assert.Equal(t, "full", fields["ai_generated"])
		assert.Equal(t, "just a body\n", body)
	})
}

func TestFromRecord(t *testing.T) {
	reviewed := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	rec := &model.ReviewRecord{
		AIAssist:         model.AssistPartial,
		Sources:          []string{"https://config-service/docs"},
		VerifiedBy:       []model.Verifier{{Role: model.RoleSME, ID: "sme-1"}, {Role: model.RoleEditor, ID: "ed-1"}},
		ReviewDate:       &reviewed,
		RiskLevel:        model.RiskP1,
		Model:            "claude-sonnet-4-5",
		PromptVersion:    "v3",
		RetrievalContext: "docs-repo@abc123",
	}

	m := FromRecord(rec)
	assert.Equal(t, "partial", m.AIGenerated)
	assert.Equal(t, []string{"sme-1", "ed-1"}, m.VerifiedBy)
	assert.Equal(t, "2026-08-15", m.ReviewDate)
	assert.Equal(t, "P1", m.RiskLevel)
}
