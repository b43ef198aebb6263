package toolcall

import (
	"encoding/json"
	"regexp"
	"strings"
)

// structuredContent is the modern tool-message payload: the tool name plus a
// structured result. Older messages wrap it one level deeper under
// "content", and the oldest embed everything in free text.
type structuredContent struct {
	ToolName   string          `json:"tool_name"`
	XMLTagName string          `json:"xml_tag_name"`
	Parameters json.RawMessage `json:"parameters"`
	Result     json.RawMessage `json:"result"`
}

type structuredResult struct {
	Success *bool  `json:"success"`
	Output  string `json:"output"`
}

func (c structuredContent) name() string {
	if c.ToolName != "" {
		return c.ToolName
	}
	return c.XMLTagName
}

// parseStructured extracts the structured tool payload from a tool message,
// unwrapping the legacy {"content": {...}} envelope when present. Returns
// false when the content is not structured at all.
func parseStructured(content string) (structuredContent, bool) {
	var sc structuredContent
	if err := json.Unmarshal([]byte(content), &sc); err == nil && sc.name() != "" {
		return sc, true
	}

	var envelope struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err != nil || len(envelope.Content) == 0 {
		return structuredContent{}, false
	}
	if err := json.Unmarshal(envelope.Content, &sc); err == nil && sc.name() != "" {
		return sc, true
	}
	return structuredContent{}, false
}

// unwrapContent peels the {"content": "..."} envelope off a message payload,
// returning the payload unchanged when it is not wrapped.
func unwrapContent(content string) string {
	var envelope struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err == nil && envelope.Content != "" {
		return envelope.Content
	}
	return content
}

var openingTagRe = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9_-]*)[\s/>]`)

// extractTagName pulls the first XML-ish opening tag out of legacy assistant
// content, e.g. `<execute-command>ls</execute-command>` yields
// "execute-command". Empty when no tag is found.
func extractTagName(content string) string {
	m := openingTagRe.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return m[1]
}

// assistantToolName resolves the tool name for a legacy assistant message:
// first an embedded XML tag, then the OpenAI-style tool_calls descriptor.
func assistantToolName(assistantContent string) string {
	inner := unwrapContent(assistantContent)
	if tag := extractTagName(inner); tag != "" {
		return NormalizeToolName(tag)
	}

	var descriptor struct {
		ToolCalls []struct {
			Name     string `json:"name"`
			Function struct {
				Name string `json:"name"`
			} `json:"function"`
		} `json:"tool_calls"`
	}
	if err := json.Unmarshal([]byte(assistantContent), &descriptor); err == nil && len(descriptor.ToolCalls) > 0 {
		first := descriptor.ToolCalls[0]
		if first.Function.Name != "" {
			return NormalizeToolName(first.Function.Name)
		}
		if first.Name != "" {
			return NormalizeToolName(first.Name)
		}
	}
	return ""
}

// parsedMetadata is the side-channel that links a tool-result message back
// to the assistant message that invoked it.
type parsedMetadata struct {
	AssistantMessageID string `json:"assistant_message_id"`
}

func assistantRef(metadata string) string {
	var md parsedMetadata
	if err := json.Unmarshal([]byte(metadata), &md); err != nil {
		return ""
	}
	return md.AssistantMessageID
}

// ResultInterpreter decides whether a tool result content indicates success.
// Implementations are tried in order; ok=false passes to the next one.
type ResultInterpreter interface {
	Interpret(content string) (success, ok bool)
}

// StructuredInterpreter reads the success flag from the structured result
// field. This is the primary path.
type StructuredInterpreter struct{}

func (StructuredInterpreter) Interpret(content string) (success, ok bool) {
	sc, isStructured := parseStructured(content)
	if !isStructured {
		return false, false
	}
	// Any structured payload is claimed here so the keyword heuristics never
	// scan it; a missing result field or flag counts as success.
	if len(sc.Result) == 0 {
		return true, true
	}
	var res structuredResult
	if err := json.Unmarshal(sc.Result, &res); err != nil || res.Success == nil {
		return true, true
	}
	return *res.Success, true
}

var toolResultRe = regexp.MustCompile(`(?i)ToolResult\s*\(\s*success\s*=\s*(True|False)`)

// HeuristicInterpreter is the legacy fallback: it looks for the
// ToolResult(success=...) pattern in the result text, then for
// failure-indicating keywords.
type HeuristicInterpreter struct{}

func (HeuristicInterpreter) Interpret(content string) (success, ok bool) {
	text := unwrapContent(content)
	if m := toolResultRe.FindStringSubmatch(text); m != nil {
		return strings.EqualFold(m[1], "true"), true
	}

	lower := strings.ToLower(text)
	failed := strings.Contains(lower, "failed") ||
		strings.Contains(lower, "error") ||
		strings.Contains(lower, "failure")
	return !failed, true
}

// interpretSuccess runs the interpreter chain; a message no interpreter
// claims is assumed successful rather than blocking the view.
func interpretSuccess(interpreters []ResultInterpreter, content string) bool {
	for _, in := range interpreters {
		if success, ok := in.Interpret(content); ok {
			return success
		}
	}
	return true
}
