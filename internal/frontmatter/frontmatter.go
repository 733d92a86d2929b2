// Package frontmatter reads and writes the review metadata block carried at
// the top of content files. The field set mirrors the review record; values
// round-trip verbatim.
package frontmatter

import (
	"bytes"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/veridocs/reviewctl/internal/model"
)

const delimiter = "---"

// Meta is the required review metadata persisted as YAML front matter.
type Meta struct {
	AIGenerated      string   `yaml:"ai_generated,omitempty"`
	Sources          []string `yaml:"sources,omitempty"`
	VerifiedBy       []string `yaml:"verified_by,omitempty"`
	ReviewDate       string   `yaml:"review_date,omitempty"`
	RiskLevel        string   `yaml:"risk_level,omitempty"`
	Model            string   `yaml:"model,omitempty"`
	PromptVersion    string   `yaml:"prompt_version,omitempty"`
	RetrievalContext string   `yaml:"retrieval_context,omitempty"`
}

// FromRecord builds front matter metadata from a review record.
func FromRecord(rec *model.ReviewRecord) Meta {
	m := Meta{
		AIGenerated:      string(rec.AIAssist),
		Sources:          rec.Sources,
		RiskLevel:        string(rec.RiskLevel),
		Model:            rec.Model,
		PromptVersion:    rec.PromptVersion,
		RetrievalContext: rec.RetrievalContext,
	}
	for _, v := range rec.VerifiedBy {
		m.VerifiedBy = append(m.VerifiedBy, v.ID)
	}
	if rec.ReviewDate != nil {
		m.ReviewDate = rec.ReviewDate.UTC().Format(time.DateOnly)
	}
	return m
}

// Parse splits a document into its front matter fields and body. Documents
// without a front matter block return an empty map and the full body.
func Parse(doc []byte) (map[string]any, string, error) {
	s := string(doc)
	if !strings.HasPrefix(s, delimiter+"\n") {
		return map[string]any{}, s, nil
	}

	rest := s[len(delimiter)+1:]
	end := strings.Index(rest, "\n"+delimiter)
	if end < 0 {
		return nil, "", eris.New("frontmatter: unterminated block")
	}

	block := rest[:end]
	body := rest[end+len(delimiter)+1:]
	body = strings.TrimPrefix(body, "\n")

	fields := map[string]any{}
	if err := yaml.Unmarshal([]byte(block), &fields); err != nil {
		return nil, "", eris.Wrap(err, "frontmatter: unmarshal")
	}
	return fields, body, nil
}

// Apply replaces (or prepends) the front matter block of doc with meta,
// leaving the body untouched.
func Apply(doc []byte, meta Meta) ([]byte, error) {
	_, body, err := Parse(doc)
	if err != nil {
		return nil, err
	}

	block, err := yaml.Marshal(meta)
	if err != nil {
		return nil, eris.Wrap(err, "frontmatter: marshal")
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(block)
	buf.WriteString(delimiter + "\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}
