package lsp

type CodeActionRequest struct {
	Request
	Params CodeActionParams `json:"params"`
}

type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Context      CodeActionContext      `json:"context"`
}

type CodeActionContext struct {
	Diagnostics []Diagnostic          `json:"diagnostics"`
	Only        []CodeActionKind      `json:"only,omitempty"`
	TriggerKind CodeActionTriggerKind `json:"triggerKind"`
}

type CodeActionTriggerKind int

const (
	CodeActionTriggerInvoked CodeActionTriggerKind = iota + 1
	CodeActionTriggerAutomatic
)

type CodeActionKind string

const (
	CodeActionQuickFix CodeActionKind = "quickfix"
)

type CodeActionResponse struct {
	Response
	Result []CodeAction `json:"result"`
}

type CodeAction struct {
	Title       string         `json:"title"`
	Kind        CodeActionKind `json:"kind"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
	Edit        WorkspaceEdit  `json:"edit"`
}

func NewCodeActionResponse(id int, actions []CodeAction) CodeActionResponse {
	return CodeActionResponse{
		Response: Response{
			RPC: RPC_VERSION,
			ID:  &id,
		},
		Result: actions,
	}
}
