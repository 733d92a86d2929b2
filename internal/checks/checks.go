// Package checks runs the automated structural checkers invoked by the
// automated_checks workflow stage: link resolution, glossary usage, and
// front matter schema. Checkers report pass/fail with detail; any failure
// blocks the stage.
package checks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/veridocs/reviewctl/internal/frontmatter"
)

// Result is the outcome of one checker against one content item.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Content is the parsed content item handed to each checker.
type Content struct {
	ID          string
	Body        string
	FrontMatter map[string]any
	Links       []string
}

// Checker is a single structural check over a content item.
type Checker interface {
	Name() string
	Check(ctx context.Context, c Content) Result
}

// Runner loads a content item by identifier and runs every registered
// checker against it.
type Runner struct {
	contentDir string
	checkers   []Checker
}

// NewRunner creates a Runner reading content files from contentDir.
func NewRunner(contentDir string, checkers ...Checker) *Runner {
	return &Runner{contentDir: contentDir, checkers: checkers}
}

var markdownLink = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)

// Run executes all checkers for the given content identifier. Checkers run
// concurrently; results come back ordered by checker name. The error return
// covers load/parse failures only, never check failures.
func (r *Runner) Run(ctx context.Context, contentID string) ([]Result, error) {
	raw, err := os.ReadFile(filepath.Join(r.contentDir, filepath.FromSlash(contentID)))
	if err != nil {
		return nil, eris.Wrapf(err, "checks: read content %s", contentID)
	}

	fields, body, err := frontmatter.Parse(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "checks: parse content %s", contentID)
	}

	content := Content{
		ID:          contentID,
		Body:        body,
		FrontMatter: fields,
		Links:       extractLinks(body),
	}

	results := make([]Result, len(r.checkers))
	g, gCtx := errgroup.WithContext(ctx)
	for i, c := range r.checkers {
		g.Go(func() error {
			results[i] = c.Check(gCtx, content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "checks: run")
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

// Failures filters results down to the failed ones.
func Failures(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// FailedError reports blocking check failures to the workflow engine.
type FailedError struct {
	Failures []Result
}

func (e *FailedError) Error() string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = fmt.Sprintf("%s (%s)", f.Name, f.Detail)
	}
	return "checks failed: " + strings.Join(names, "; ")
}

func extractLinks(body string) []string {
	var links []string
	for _, m := range markdownLink.FindAllStringSubmatch(body, -1) {
		links = append(links, m[1])
	}
	return links
}
