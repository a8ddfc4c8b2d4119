package lsp

// https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification/#window_showMessage

type MessageType int

const (
	MessageError MessageType = iota + 1
	MessageWarning
	MessageInfo
	MessageLog
)

type MessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type ShowMessageNotification struct {
	Notification
	Params MessageParams `json:"params"`
}

func NewShowMessageNotification(messageType MessageType, message string) ShowMessageNotification {
	return ShowMessageNotification{
		Notification: Notification{
			RPC:    RPC_VERSION,
			Method: "window/showMessage",
		},
		Params: MessageParams{
			Type:    messageType,
			Message: message,
		},
	}
}

type LogMessageNotification struct {
	Notification
	Params MessageParams `json:"params"`
}

func NewLogMessageNotification(messageType MessageType, message string) LogMessageNotification {
	return LogMessageNotification{
		Notification: Notification{
			RPC:    RPC_VERSION,
			Method: "window/logMessage",
		},
		Params: MessageParams{
			Type:    messageType,
			Message: message,
		},
	}
}
