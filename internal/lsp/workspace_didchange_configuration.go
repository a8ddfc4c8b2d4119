package lsp

import "encoding/json"

type DidChangeConfigurationNotification struct {
	Notification
	Params DidChangeConfigurationParams `json:"params"`
}

type DidChangeConfigurationParams struct {
	Settings json.RawMessage `json:"settings"`
}
