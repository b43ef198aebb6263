package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatStreamingArgumentsCommand(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"<execute-command>ls -la</execute-command>",
		formatStreamingArguments("execute-command", "ls -la"))

	// Already wrapped content passes through.
	assert.Equal(t,
		"<execute-command>ls</execute-command>",
		formatStreamingArguments("execute-command", "<execute-command>ls</execute-command>"))

	// Any command-family tool gets the envelope.
	assert.Equal(t,
		"<execute-command>pwd</execute-command>",
		formatStreamingArguments("check-command-output", "pwd"))
}

func TestFormatStreamingArgumentsFileOps(t *testing.T) {
	t.Parallel()

	// A bare path becomes a synthetic opening tag.
	assert.Equal(t,
		`<create-file file_path="src/app.go">`,
		formatStreamingArguments("create-file", "src/app.go"))

	// edit-file uses the target_file attribute.
	assert.Equal(t,
		`<edit-file target_file="main.go">`,
		formatStreamingArguments("edit-file", "main.go"))

	// Content that already carries the tag or attribute is left alone.
	assert.Equal(t,
		`<create-file>package main</create-file>`,
		formatStreamingArguments("create-file", "<create-file>package main</create-file>"))
	assert.Equal(t,
		`file_path="a.go" content here`,
		formatStreamingArguments("delete-file", `file_path="a.go" content here`))

	// Non-path content gets wrapped in the tag instead.
	assert.Equal(t,
		"<full-file-rewrite><other>x</other></full-file-rewrite>",
		formatStreamingArguments("full-file-rewrite", "<other>x</other>"))
}

func TestFormatStreamingArgumentsPassthrough(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"query":"golang"}`, formatStreamingArguments("web-search", `{"query":"golang"}`))
	assert.Equal(t, "", formatStreamingArguments("web-search", ""))
}
