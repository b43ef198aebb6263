package toolcall

import (
	"fmt"
	"strings"
)

var fileOpTags = []string{"create-file", "delete-file", "full-file-rewrite", "edit-file"}

// formatStreamingArguments shapes a raw streaming argument payload into the
// display form the per-tool renderers expect. Command tools get the
// execute-command envelope; file tools get a synthetic opening tag when the
// payload looks like a bare path.
func formatStreamingArguments(toolName, args string) string {
	if strings.Contains(toolName, "command") && !strings.Contains(args, "<execute-command>") {
		return "<execute-command>" + args + "</execute-command>"
	}

	for _, tag := range fileOpTags {
		if toolName != tag {
			continue
		}
		if strings.Contains(args, "<"+tag+">") ||
			strings.Contains(args, "file_path=") ||
			strings.Contains(args, "target_file=") {
			return args
		}
		path := strings.TrimSpace(args)
		if path == "" || strings.HasPrefix(path, "<") {
			return fmt.Sprintf("<%s>%s</%s>", tag, args, tag)
		}
		if tag == "edit-file" {
			return fmt.Sprintf(`<%s target_file=%q>`, tag, path)
		}
		return fmt.Sprintf(`<%s file_path=%q>`, tag, path)
	}

	return args
}
