package ticket

import (
	"context"

	"autopatch/pkg/github"
	"autopatch/pkg/logx"
	"autopatch/pkg/orch"
)

// StatusReporter keeps one status comment on the ticket up to date. The
// first Publish creates the comment; later calls edit it in place. Updates
// are guarded by refresh-and-retry-once so a stale token never aborts the
// run, and any other publish failure is logged and swallowed: status
// reporting must not take the orchestration down with it.
type StatusReporter struct {
	host        Host
	creds       github.CredentialProvider
	issueNumber int
	commentID   int64
	logger      *logx.Logger
}

// NewStatusReporter creates a reporter for one ticket.
func NewStatusReporter(host Host, creds github.CredentialProvider, issueNumber int) *StatusReporter {
	return &StatusReporter{
		host:        host,
		creds:       creds,
		issueNumber: issueNumber,
		logger:      logx.NewLogger("reporter"),
	}
}

// Publish renders the progress and creates or updates the status comment.
func (r *StatusReporter) Publish(ctx context.Context, progress *orch.Progress) {
	body := progress.Render()

	err := github.WithCredentialRetry(ctx, r.creds, r.logger, func(ctx context.Context) error {
		if r.commentID == 0 {
			id, err := r.host.CommentOnIssue(ctx, r.issueNumber, body)
			if err != nil {
				return err
			}
			r.commentID = id
			return nil
		}
		return r.host.UpdateComment(ctx, r.commentID, body)
	})
	if err != nil {
		r.logger.Warn("failed to publish status comment on #%d: %v", r.issueNumber, err)
	}
}
