package mcp

import (
	"context"
	"encoding/json"

	"dcb/internal/buildlog"
	"dcb/internal/compile"
	"dcb/internal/dcberr"
	"dcb/internal/model"
	"dcb/internal/pathutil"
)

// Tool describes one MCP tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func (s *Server) registerTools() {
	s.register(Tool{
		Name:        "compileDelphiProject",
		Description: "Compile a Delphi project (.dpr, .dpk or .dproj) and return structured errors and statistics",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"projectFile": map[string]any{
					"type":        "string",
					"description": "Path to the .dpr, .dpk or .dproj file",
				},
				"platform": map[string]any{
					"type":        "string",
					"enum":        platformNames(),
					"description": "Target platform; defaults to the project's active platform",
				},
				"buildConfig": map[string]any{
					"type":        "string",
					"enum":        []string{"Debug", "Release"},
					"description": "Build configuration; defaults to the project's active configuration",
				},
				"force": map[string]any{
					"type":        "boolean",
					"default":     false,
					"description": "Rebuild all units (-B)",
				},
				"configFile": map[string]any{
					"type":        "string",
					"description": "Explicit backend configuration file",
				},
				"extraPaths": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Additional unit search paths",
				},
				"extraFlags": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Additional compiler flags, passed through verbatim",
				},
			},
			"required": []string{"projectFile"},
		},
	}, s.toolCompile)

	s.register(Tool{
		Name:        "generateConfigFromBuildLog",
		Description: "Create a backend configuration file from an IDE build log",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"logFile": map[string]any{
					"type":        "string",
					"description": "Path to the IDE build log",
				},
				"outputFile": map[string]any{
					"type":        "string",
					"description": "Where to write the configuration; defaults to the platform-specific filename",
				},
			},
			"required": []string{"logFile"},
		},
	}, s.toolGenerate)

	s.register(Tool{
		Name:        "generateConfigFromMultipleBuildLogs",
		Description: "Merge several IDE build logs (different platforms or configurations) into one hierarchical configuration",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"logFiles": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Paths to the IDE build logs",
				},
				"outputFile": map[string]any{
					"type":        "string",
					"description": "Where to write the configuration",
				},
			},
			"required": []string{"logFiles"},
		},
	}, s.toolGenerateMulti)

	s.register(Tool{
		Name:        "extendConfigFromBuildLog",
		Description: "Merge new paths and settings from an IDE build log into an existing configuration without overwriting user edits",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"logFile": map[string]any{
					"type":        "string",
					"description": "Path to the IDE build log",
				},
				"configFile": map[string]any{
					"type":        "string",
					"description": "Configuration to extend; defaults to the standard search order",
				},
				"outputFile": map[string]any{
					"type":        "string",
					"description": "Where to write the result; defaults to the extended file itself",
				},
			},
			"required": []string{"logFile"},
		},
	}, s.toolExtend)
}

func (s *Server) register(def Tool, handler func(ctx context.Context, params map[string]any) (any, error)) {
	s.tools[def.Name] = toolEntry{definition: def, handler: handler}
}

func (s *Server) toolDefinitions() []Tool {
	// Stable order: the registration order above.
	order := []string{
		"compileDelphiProject",
		"generateConfigFromBuildLog",
		"generateConfigFromMultipleBuildLogs",
		"extendConfigFromBuildLog",
	}
	defs := make([]Tool, 0, len(order))
	for _, name := range order {
		if entry, ok := s.tools[name]; ok {
			defs = append(defs, entry.definition)
		}
	}
	return defs
}

func (s *Server) toolCompile(ctx context.Context, params map[string]any) (any, error) {
	projectFile, err := requiredString(params, "projectFile")
	if err != nil {
		return nil, err
	}

	opts := compile.Options{
		ConfigPath: stringParam(params, "configFile"),
		Force:      boolParam(params, "force"),
		ExtraPaths: stringSliceParam(params, "extraPaths"),
		ExtraFlags: stringSliceParam(params, "extraFlags"),
	}
	if v := stringParam(params, "platform"); v != "" {
		platform, err := model.ParsePlatform(v)
		if err != nil {
			return nil, err
		}
		opts.Platform = platform
	}
	if v := stringParam(params, "buildConfig"); v != "" {
		config, err := model.ParseBuildConfig(v)
		if err != nil {
			return nil, err
		}
		opts.BuildConfig = config
	}

	return s.services.Compiler.Compile(ctx, projectFile, opts)
}

func (s *Server) toolGenerate(ctx context.Context, params map[string]any) (any, error) {
	logFile, err := requiredString(params, "logFile")
	if err != nil {
		return nil, err
	}
	facts, err := buildlog.Parse(pathutil.FromWSL(logFile))
	if err != nil {
		return nil, err
	}
	return s.services.Generator.Generate(facts, stringParam(params, "outputFile"))
}

func (s *Server) toolGenerateMulti(ctx context.Context, params map[string]any) (any, error) {
	logFiles := stringSliceParam(params, "logFiles")
	if len(logFiles) == 0 {
		return nil, dcberr.New(dcberr.ValueError, "logFiles must name at least one build log")
	}

	entries := make([]model.BuildLogEntry, 0, len(logFiles))
	for _, logFile := range logFiles {
		facts, err := buildlog.Parse(pathutil.FromWSL(logFile))
		if err != nil {
			return nil, err
		}
		entries = append(entries, model.BuildLogEntry{LogPath: logFile, Facts: *facts})
	}
	return s.services.Generator.GenerateMulti(entries, stringParam(params, "outputFile"))
}

func (s *Server) toolExtend(ctx context.Context, params map[string]any) (any, error) {
	logFile, err := requiredString(params, "logFile")
	if err != nil {
		return nil, err
	}
	facts, err := buildlog.Parse(pathutil.FromWSL(logFile))
	if err != nil {
		return nil, err
	}

	configFile := stringParam(params, "configFile")
	if configFile == "" {
		configFile, _ = s.services.Loader.FindConfigFile("", facts.Platform)
	}
	return s.services.Extender.Extend(facts, configFile, stringParam(params, "outputFile"))
}

func platformNames() []string {
	names := make([]string, 0, len(model.Platforms))
	for _, p := range model.Platforms {
		names = append(names, string(p))
	}
	return names
}

// errorContent renders a failed tool call as MCP error content. The stable
// error code travels alongside the message so callers can branch on it.
func errorContent(err error) map[string]any {
	payload := map[string]any{
		"error": map[string]any{
			"code":    string(dcberr.CodeOf(err)),
			"message": err.Error(),
		},
	}
	data, _ := json.Marshal(payload)
	return map[string]any{
		"isError": true,
		"content": []map[string]any{{"type": "text", "text": string(data)}},
	}
}

func requiredString(params map[string]any, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || v == "" {
		return "", dcberr.New(dcberr.ValueError, "missing required parameter %q", key)
	}
	return v, nil
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func boolParam(params map[string]any, key string) bool {
	v, _ := params[key].(bool)
	return v
}

func stringSliceParam(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
