// Package mcp exposes the Delphi build tools over the Model Context
// Protocol: a line-delimited JSON-RPC 2.0 conversation on stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"dcb/internal/compile"
	"dcb/internal/configstore"
)

// MaxMessageSize caps a single protocol message. Tool arguments carry file
// paths rather than file contents, so messages stay well under this.
const MaxMessageSize = 1024 * 1024

// Services bundles the domain services the tools dispatch to.
type Services struct {
	Compiler  *compile.Service
	Loader    *configstore.Loader
	Generator *configstore.Generator
	Extender  *configstore.Extender
}

// Server is the stdio MCP server.
type Server struct {
	stdin    io.Reader
	stdout   io.Writer
	scanner  *bufio.Scanner
	log      *slog.Logger
	version  string
	services *Services
	tools    map[string]toolEntry
}

type toolEntry struct {
	definition Tool
	handler    func(ctx context.Context, params map[string]any) (any, error)
}

// NewServer builds a server reading from stdin and writing to stdout.
func NewServer(version string, services *Services, log *slog.Logger) *Server {
	s := &Server{
		stdin:    os.Stdin,
		stdout:   os.Stdout,
		log:      log,
		version:  version,
		services: services,
		tools:    make(map[string]toolEntry),
	}
	s.registerTools()
	return s
}

// SetStdin replaces the input stream (for tests).
func (s *Server) SetStdin(r io.Reader) {
	s.stdin = r
	s.scanner = nil
}

// SetStdout replaces the output stream (for tests).
func (s *Server) SetStdout(w io.Writer) {
	s.stdout = w
}

// Run processes messages until EOF.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("MCP server starting", "version", s.version)

	for {
		msg, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				s.log.Info("MCP server shutting down (EOF)")
				return nil
			}
			s.log.Error("failed to read message", "error", err)
			continue
		}

		response := s.handleMessage(ctx, msg)
		if response == nil {
			continue
		}
		if err := s.writeMessage(response); err != nil {
			s.log.Error("failed to write response", "error", err)
		}
	}
}

func (s *Server) readMessage() (*Message, error) {
	if s.scanner == nil {
		s.scanner = bufio.NewScanner(s.stdin)
		s.scanner.Buffer(make([]byte, MaxMessageSize), MaxMessageSize)
	}

	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return nil, io.EOF
	}

	var msg Message
	if err := json.Unmarshal(s.scanner.Bytes(), &msg); err != nil {
		return nil, fmt.Errorf("parsing JSON-RPC message: %w", err)
	}
	return &msg, nil
}

func (s *Server) writeMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling JSON-RPC message: %w", err)
	}
	if _, err := fmt.Fprintf(s.stdout, "%s\n", data); err != nil {
		return fmt.Errorf("writing stdout: %w", err)
	}
	return nil
}

func (s *Server) handleMessage(ctx context.Context, msg *Message) *Message {
	if msg.IsRequest() {
		return s.handleRequest(ctx, msg)
	}
	if msg.IsNotification() {
		s.log.Debug("notification", "method", msg.Method)
		return nil
	}
	return NewErrorMessage(msg.Id, CodeInvalidRequest, "not a request or notification")
}

func (s *Server) handleRequest(ctx context.Context, msg *Message) *Message {
	s.log.Debug("handling request", "method", msg.Method, "id", msg.Id)

	switch msg.Method {
	case "initialize":
		return NewResultMessage(msg.Id, s.initializeResult())
	case "tools/list":
		return NewResultMessage(msg.Id, map[string]any{"tools": s.toolDefinitions()})
	case "tools/call":
		return s.handleCallTool(ctx, msg)
	default:
		return NewErrorMessage(msg.Id, CodeMethodNotFound, "method not found: "+msg.Method)
	}
}

func (s *Server) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "dcb",
			"version": s.version,
		},
	}
}

func (s *Server) handleCallTool(ctx context.Context, msg *Message) *Message {
	params, ok := msg.Params.(map[string]any)
	if !ok {
		return NewErrorMessage(msg.Id, CodeInvalidParams, "invalid params: expected object")
	}
	name, ok := params["name"].(string)
	if !ok {
		return NewErrorMessage(msg.Id, CodeInvalidParams, "missing tool name")
	}
	args, ok := params["arguments"].(map[string]any)
	if !ok {
		args = make(map[string]any)
	}

	entry, exists := s.tools[name]
	if !exists {
		return NewErrorMessage(msg.Id, CodeMethodNotFound, "unknown tool: "+name)
	}

	s.log.Info("calling tool", "tool", name)

	result, err := entry.handler(ctx, args)
	if err != nil {
		return NewResultMessage(msg.Id, errorContent(err))
	}
	return NewResultMessage(msg.Id, textContent(result))
}

// textContent wraps a tool result as MCP text content.
func textContent(result any) map[string]any {
	data, err := json.Marshal(result)
	if err != nil {
		return errorContent(err)
	}
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(data)}},
	}
}
