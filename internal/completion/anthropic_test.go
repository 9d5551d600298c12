package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSystemPrompt_ExtractsAndJoinsSystemMessages(t *testing.T) {
	system, rest := splitSystemPrompt([]Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "never lie"},
		{Role: RoleAssistant, Content: "hello"},
	})
	assert.Equal(t, "be terse\n\nnever lie", system)
	assert.Len(t, rest, 2)
	assert.Equal(t, RoleUser, rest[0].Role)
	assert.Equal(t, RoleAssistant, rest[1].Role)
}

func TestSplitSystemPrompt_NoSystemMessages(t *testing.T) {
	system, rest := splitSystemPrompt([]Message{{Role: RoleUser, Content: "hi"}})
	assert.Empty(t, system)
	assert.Len(t, rest, 1)
}

func TestWithStructuredInstruction_AppendsToLastMessage(t *testing.T) {
	req := Request{Messages: []Message{{Role: RoleUser, Content: "extract memories"}}}
	schema := Schema{Type: "object", Properties: map[string]Property{"content": {Type: "string"}}}

	out := withStructuredInstruction(req, schema)
	require := out.Messages[len(out.Messages)-1].Content
	assert.Contains(t, require, "extract memories")
	assert.Contains(t, require, "Respond with a single JSON object")
	assert.Len(t, out.Messages, 1)
}

func TestWithStructuredInstruction_NoMessagesCreatesOne(t *testing.T) {
	out := withStructuredInstruction(Request{}, Schema{Type: "object"})
	assert.Len(t, out.Messages, 1)
	assert.Equal(t, RoleUser, out.Messages[0].Role)
}

func TestClassifyAnthropicError_NilIsNil(t *testing.T) {
	assert.Nil(t, classifyAnthropicError(nil))
}
