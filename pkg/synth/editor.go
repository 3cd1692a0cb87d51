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

// Editor is the LLM-backed Synthesizer. One Complete call covers the whole
// batch: synthesis is batched because edits may need cross-file context.
type Editor struct {
	client           llm.Client
	counter          *utils.TokenCounter
	maxContextTokens int
	maxOutputTokens  int
	logger           *logx.Logger
}

// NewEditor builds an editor on the given model client and budgets.
func NewEditor(client llm.Client, counter *utils.TokenCounter, cfg config.ModelConfig) *Editor {
	return &Editor{
		client:           client,
		counter:          counter,
		maxContextTokens: cfg.MaxContextTokens,
		maxOutputTokens:  cfg.MaxOutputTokens,
		logger:           logx.NewLogger("synth"),
	}
}

// Synthesize implements Synthesizer.
func (e *Editor) Synthesize(ctx context.Context, batch change.Batch, description string, repo RepoReader, prior change.Snapshot) (change.Snapshot, error) {
	editable := batch.Editable()
	if len(editable) == 0 {
		return change.Snapshot{}, nil
	}

	baselines := e.loadBaselines(ctx, batch, repo, prior)

	snapshot := change.Snapshot{}

	// Delete requests need no model output; the intent is fully specified.
	var prompted change.Batch
	for _, req := range editable {
		if req.Type == change.TypeDelete {
			snapshot[req.Filename] = change.FileChange{
				Contents:         "",
				OriginalContents: originalFor(req.Filename, baselines, prior),
			}
			continue
		}
		prompted = append(prompted, req)
	}

	if len(prompted) > 0 {
		if err := e.checkBudgets(prompted, baselines); err != nil {
			return nil, err
		}

		userPrompt := e.buildPrompt(batch, prompted, description, baselines)
		req := llm.NewRequest([]llm.Message{
			llm.SystemMessage(editorSystemPrompt),
			llm.UserMessage(userPrompt),
		}, e.maxOutputTokens)

		resp, err := e.client.Complete(ctx, req)
		if err != nil {
			return nil, mapClientError(err)
		}
		if resp.StopReason == "max_tokens" {
			e.logger.Warn("synthesis output hit the token ceiling; trailing file blocks may be dropped")
		}

		for path, contents := range ParseFileBlocks(resp.Content) {
			snapshot[path] = change.FileChange{
				Contents:         contents,
				OriginalContents: originalFor(path, baselines, prior),
			}
		}
	}

	e.logger.Info("synthesized %d of %d requested files", len(snapshot), len(editable))
	return snapshot, nil
}

// loadBaselines resolves the current contents of every path in scope.
// Prior-round contents supersede the working tree; missing files (files
// being created) resolve to absent entries.
func (e *Editor) loadBaselines(ctx context.Context, batch change.Batch, repo RepoReader, prior change.Snapshot) map[string]string {
	baselines := make(map[string]string)
	for _, path := range batch.RelevantPaths() {
		if fc, ok := prior[path]; ok {
			baselines[path] = fc.Contents
			continue
		}
		contents, err := repo.ReadFile(ctx, path)
		if err != nil {
			if req := batch.ByFilename(path); req != nil && req.Type == change.TypeCreate {
				continue
			}
			e.logger.Debug("context file %s unreadable: %v", path, err)
			continue
		}
		baselines[path] = contents
	}
	return baselines
}

// checkBudgets rejects any single file whose context alone would overflow
// the model. The round aborts on the first offender.
func (e *Editor) checkBudgets(prompted change.Batch, baselines map[string]string) error {
	for _, req := range prompted {
		tokens := e.counter.CountTokens(baselines[req.Filename]) + e.counter.CountTokens(req.Instructions)
		if tokens > e.maxContextTokens {
			return &TokenBudgetError{Filename: req.Filename, Tokens: tokens, Limit: e.maxContextTokens}
		}
	}
	return nil
}

// buildPrompt assembles the user message: description, context files (as
// budget allows), then one instruction per prompted file. Target files are
// always included in full; extra context files are added greedily until
// the context budget runs out.
func (e *Editor) buildPrompt(batch change.Batch, prompted change.Batch, description string, baselines map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Change request\n\n%s\n\n", description)

	targets := make(map[string]bool, len(prompted))
	for _, req := range prompted {
		targets[req.Filename] = true
	}

	b.WriteString("# Current file contents\n\n")
	budget := e.maxContextTokens - e.counter.CountTokens(b.String())
	for _, path := range batch.RelevantPaths() {
		contents, ok := baselines[path]
		if !ok {
			continue
		}
		block := fmt.Sprintf("<file path=%q>\n%s\n</file>\n\n", path, contents)
		cost := e.counter.CountTokens(block)
		if !targets[path] && cost > budget {
			e.logger.Debug("skipping context file %s: %d tokens over remaining budget", path, cost)
			continue
		}
		b.WriteString(block)
		budget -= cost
	}

	b.WriteString("# Files to change\n\n")
	for _, req := range prompted {
		verb := "Modify"
		if req.Type == change.TypeCreate {
			verb = "Create"
		}
		fmt.Fprintf(&b, "%s %s: %s\n\n", verb, req.Filename, req.Instructions)
	}

	var checks []string
	for _, req := range batch {
		if req.Type == change.TypeCheck && req.Instructions != "" {
			checks = append(checks, fmt.Sprintf("- %s: %s", req.Filename, req.Instructions))
		}
	}
	if len(checks) > 0 {
		fmt.Fprintf(&b, "# Verification notes\n\n%s\n", strings.Join(checks, "\n"))
	}

	return b.String()
}

// originalFor picks the original contents recorded for path: the earliest
// round's view wins so the snapshot always diffs against the branch base.
func originalFor(path string, baselines map[string]string, prior change.Snapshot) string {
	if fc, ok := prior[path]; ok {
		return fc.OriginalContents
	}
	return baselines[path]
}

// mapClientError converts model-client failures into the synthesizer's
// typed errors.
func mapClientError(err error) error {
	if llm.IsType(err, llm.ErrTypeBadRequest) {
		return &InvalidRequestError{Reason: err.Error(), Err: err}
	}
	return &SynthesisError{Err: err}
}
