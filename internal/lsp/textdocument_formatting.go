package lsp

type FormattingRequest struct {
	Request
	Params FormattingParams `json:"params"`
}

type FormattingParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Options      FormattingOptions      `json:"options"`
}

// perltidy takes its style from .perltidyrc and the configured arguments,
// the editor options are decoded for logging only.
type FormattingOptions struct {
	TabSize                uint `json:"tabSize"`
	InsertSpaces           bool `json:"insertSpaces"`
	TrimTrailingWhiteSpace bool `json:"trimTrailingWhitespace"`
	InsertFinalNewline     bool `json:"insertFinalNewline"`
	TrimFinalNewlines      bool `json:"trimFinalNewlines"`
}

type FormattingResponse struct {
	Response
	Result []TextEdit `json:"result"`
}

func NewFormattingResponse(id int, edits []TextEdit) FormattingResponse {
	if edits == nil {
		edits = []TextEdit{}
	}
	return FormattingResponse{
		Response: Response{
			RPC: RPC_VERSION,
			ID:  &id,
		},
		Result: edits,
	}
}
