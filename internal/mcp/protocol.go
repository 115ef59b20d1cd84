package mcp

// Message is a JSON-RPC 2.0 message as used by the MCP wire protocol.
type Message struct {
	Jsonrpc string    `json:"jsonrpc"`
	Id      any       `json:"id,omitempty"`
	Method  string    `json:"method,omitempty"`
	Params  any       `json:"params,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// NewErrorMessage builds an error response.
func NewErrorMessage(id any, code int, message string) *Message {
	return &Message{
		Jsonrpc: "2.0",
		Id:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// NewResultMessage builds a result response.
func NewResultMessage(id any, result any) *Message {
	return &Message{Jsonrpc: "2.0", Id: id, Result: result}
}

// IsRequest reports whether the message expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.Id != nil
}

// IsNotification reports whether the message is a fire-and-forget call.
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.Id == nil
}
