package lsp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const RPC_VERSION = "2.0"

// https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification/#errorCodes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

var headerSeparator = []byte("\r\n\r\n")

type Request struct {
	RPC    string `json:"jsonrpc"`
	ID     int    `json:"id"`
	Method string `json:"method"`
}

type Response struct {
	RPC   string         `json:"jsonrpc"`
	ID    *int           `json:"id"`
	Error *ResponseError `json:"error,omitempty"`
}

type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Notification struct {
	RPC    string `json:"jsonrpc"`
	Method string `json:"method"`
}

// BaseMessage is used to peek at the method and id of an incoming message.
// A missing id means the message is a notification.
type BaseMessage struct {
	Method string `json:"method"`
	ID     *int   `json:"id"`
}

func NewErrorResponse(id *int, code int, message string) Response {
	return Response{
		RPC: RPC_VERSION,
		ID:  id,
		Error: &ResponseError{
			Code:    code,
			Message: message,
		},
	}
}

func EncodeMessage(msg any) string {
	content, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(content), content)
}

func DecodeMessage(msg []byte) (string, []byte, error) {
	header, content, found := bytes.Cut(msg, headerSeparator)
	if !found {
		return "", nil, errors.New("did not find header separator")
	}

	contentLength, err := parseContentLength(header)
	if err != nil {
		return "", nil, err
	}
	if len(content) < contentLength {
		return "", nil, fmt.Errorf("message body shorter than Content-Length %d", contentLength)
	}

	var baseMessage BaseMessage
	if err := json.Unmarshal(content[:contentLength], &baseMessage); err != nil {
		return "", nil, fmt.Errorf("decoding message body: %w", err)
	}

	return baseMessage.Method, content[:contentLength], nil
}

// Split is a bufio.SplitFunc that yields one framed message per token.
func Split(data []byte, _ bool) (advance int, token []byte, err error) {
	header, content, found := bytes.Cut(data, headerSeparator)
	if !found {
		return 0, nil, nil
	}

	contentLength, err := parseContentLength(header)
	if err != nil {
		return 0, nil, err
	}

	if len(content) < contentLength {
		return 0, nil, nil
	}

	totalLength := len(header) + len(headerSeparator) + contentLength
	return totalLength, data[:totalLength], nil
}

// Other headers such as Content-Type are allowed and ignored.
func parseContentLength(header []byte) (int, error) {
	for line := range strings.SplitSeq(string(header), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		contentLength, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("invalid Content-Length %q: %w", value, err)
		}
		if contentLength < 0 {
			return 0, fmt.Errorf("invalid Content-Length %d", contentLength)
		}
		return contentLength, nil
	}
	return 0, errors.New("missing Content-Length header")
}
