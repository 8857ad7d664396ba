package agenkit

// Action is the decision an agent returns from a single invocation.
//
// The set of actions is closed: ToolInvocation, FinalAnswer, ReviseRequest
// and Accept. Callers switch on the concrete type.
type Action interface {
	action()
}

// ToolInvocation asks the orchestrator to run a registered tool.
type ToolInvocation struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"args"`

	// Thought is the reasoning the agent gave before choosing the tool.
	Thought string `json:"thought,omitempty"`

	Notes map[string]string `json:"notes,omitempty"`

	// Then holds further calls from the same reply, run in order after this
	// one before the agent is asked again.
	Then []ToolInvocation `json:"then,omitempty"`
}

// FinalAnswer ends the current research pass with a draft answer.
type FinalAnswer struct {
	Text  string            `json:"text"`
	Notes map[string]string `json:"notes,omitempty"`
}

// ReviseRequest is a reviewer verdict asking for another research pass.
type ReviseRequest struct {
	Feedback string `json:"feedback"`
}

// Accept is a reviewer verdict accepting the draft.
type Accept struct {
	Feedback string `json:"feedback,omitempty"`
}

func (ToolInvocation) action() {}
func (FinalAnswer) action()    {}
func (ReviseRequest) action()  {}
func (Accept) action()         {}

// NotesOf returns the scratch notes attached to an action, if any.
func NotesOf(a Action) map[string]string {
	switch v := a.(type) {
	case ToolInvocation:
		return v.Notes
	case *ToolInvocation:
		if v == nil {
			return nil
		}
		return v.Notes
	case FinalAnswer:
		return v.Notes
	case *FinalAnswer:
		if v == nil {
			return nil
		}
		return v.Notes
	default:
		return nil
	}
}

// ActionKind returns a short name for the action, used in logs and metrics.
func ActionKind(a Action) string {
	switch a.(type) {
	case ToolInvocation, *ToolInvocation:
		return "tool_invocation"
	case FinalAnswer, *FinalAnswer:
		return "final_answer"
	case ReviseRequest, *ReviseRequest:
		return "revise"
	case Accept, *Accept:
		return "accept"
	default:
		return "unknown"
	}
}
