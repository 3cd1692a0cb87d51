package synth

import (
	"context"
	"fmt"
	"strings"

	"autopatch/pkg/change"
	"autopatch/pkg/config"
	"autopatch/pkg/logx"
	"autopatch/pkg/synth/llm"
	"autopatch/pkg/utils"
)

// Planner turns a ticket (title + body) into a batch of change requests.
type Planner struct {
	client           llm.Client
	counter          *utils.TokenCounter
	maxContextTokens int
	maxOutputTokens  int
	logger           *logx.Logger
}

// NewPlanner builds a planner on the given model client and budgets.
func NewPlanner(client llm.Client, counter *utils.TokenCounter, cfg config.ModelConfig) *Planner {
	return &Planner{
		client:           client,
		counter:          counter,
		maxContextTokens: cfg.MaxContextTokens,
		maxOutputTokens:  cfg.MaxOutputTokens,
		logger:           logx.NewLogger("planner"),
	}
}

// Plan derives pending change requests from the ticket text and the
// repository file listing. Planned paths outside the listing are kept only
// for create requests; the rest are dropped as hallucinated.
func (p *Planner) Plan(ctx context.Context, title, body string, repo RepoReader) (change.Batch, error) {
	files, err := repo.ListFiles(ctx)
	if err != nil {
		return nil, &SynthesisError{Err: fmt.Errorf("listing repository files: %w", err)}
	}

	req := llm.NewRequest([]llm.Message{
		llm.SystemMessage(plannerSystemPrompt),
		llm.UserMessage(p.buildPrompt(title, body, files)),
	}, p.maxOutputTokens)

	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		return nil, mapClientError(err)
	}

	known := make(map[string]bool, len(files))
	for _, f := range files {
		known[f] = true
	}

	var batch change.Batch
	for _, plan := range ParsePlanBlocks(resp.Content) {
		t := change.Type(plan.Type)
		switch t {
		case change.TypeModify, change.TypeCreate, change.TypeDelete, change.TypeCheck:
		default:
			t = change.TypeModify
		}
		if !known[plan.File] && t != change.TypeCreate {
			p.logger.Warn("planned %s of unknown file %s, dropping", t, plan.File)
			continue
		}

		req := change.NewRequest(plan.File, plan.Instructions, t)
		for _, rel := range plan.RelevantFiles {
			if known[rel] {
				req.RelevantFiles = append(req.RelevantFiles, rel)
			}
		}
		batch = append(batch, req)
	}

	if len(batch) == 0 {
		return nil, &SynthesisError{Err: fmt.Errorf("planner produced no usable change requests")}
	}
	p.logger.Info("planned %d change requests", len(batch))
	return batch, nil
}

// buildPrompt renders the ticket and as much of the file listing as the
// context budget allows.
func (p *Planner) buildPrompt(title, body string, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Request\n\n%s\n\n%s\n\n# Repository files\n\n", title, body)

	budget := p.maxContextTokens - p.counter.CountTokens(b.String())
	listed := 0
	for _, f := range files {
		line := f + "\n"
		cost := p.counter.CountTokens(line)
		if cost > budget {
			fmt.Fprintf(&b, "... (%d more files omitted)\n", len(files)-listed)
			break
		}
		b.WriteString(line)
		budget -= cost
		listed++
	}
	return b.String()
}
