package orchestrator

import (
	"context"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
	"github.com/scttfrdmn/agenkit/research-go/session"
)

// review asks the reviewer for a verdict on draft. Anything other than a
// ReviseRequest accepts the draft.
func (r *run) review(ctx context.Context, draft string) (bool, string, error) {
	round := len(r.verdicts) + 1
	req := r.request(agenkit.RoleReviewer, round)
	req.Draft = draft

	action, err := r.invokeAgent(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return false, "", ctx.Err()
		}
		return false, "", &stop{
			reason:  "reviewer failed",
			warning: "The review agent could not be reached; the answer is an unreviewed draft.",
			err:     err,
		}
	}

	verdict := session.Verdict{Round: round, Accepted: true}
	switch a := concrete(action).(type) {
	case agenkit.ReviseRequest:
		verdict.Accepted = false
		verdict.Feedback = a.Feedback
	case agenkit.Accept:
		verdict.Feedback = a.Feedback
	}
	r.verdicts = append(r.verdicts, verdict)
	return verdict.Accepted, verdict.Feedback, nil
}
