// Package completion defines the language model contract used by the session
// stages.
package completion

import "context"

// Role names the session stage a request belongs to.
type Role string

const (
	RoleHistoryCollector Role = "history_collector"
	RoleResearcher       Role = "researcher"
	RoleResponder        Role = "responder"
)

// NoInformation is the research result when nothing relevant was retrieved
// from the reader's books.
const NoInformation = "No relevant information found in the books you've read."

// Request is one stage call. System and Prompt are the rendered instructions;
// Context carries the stage's typed input (domain.HistoryContext,
// domain.ResearchContext or domain.ResponseContext) for providers that do not
// read prose.
type Request struct {
	Role    Role
	System  string
	Prompt  string
	Context any
}

// Service produces text for a stage request.
type Service interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Func adapts a plain function to Service.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }
