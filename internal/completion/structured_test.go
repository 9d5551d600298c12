package completion

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanMarkdownJSON_FencedBlockOnly(t *testing.T) {
	raw := "Here you go:\n```json\n{\"memories\":[],\"relationships\":[]}\n```\n"
	out, err := cleanMarkdownJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"memories":[],"relationships":[]}`, out)
}

func TestCleanMarkdownJSON_NoFenceReturnsTrimmedBody(t *testing.T) {
	raw := "  {\"memories\":[]}  "
	out, err := cleanMarkdownJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"memories":[]}`, out)
}

func TestCleanMarkdownJSON_SectionHeaders(t *testing.T) {
	raw := "## Entities\n" +
		`[{"name":"Alice"}]` + "\n" +
		"## Facts\n" +
		`[{"content":"likes coffee"}]` + "\n" +
		"## Decisions\n" +
		`[{"content":"use Go"}]` + "\n" +
		"## Relationships\n" +
		`[{"from":"Alice","to":"coffee","type":"likes"}]`

	out, err := cleanMarkdownJSON(raw)
	require.NoError(t, err)

	var parsed struct {
		Memories      []map[string]any `json:"memories"`
		Relationships []map[string]any `json:"relationships"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))

	require.Len(t, parsed.Memories, 3)
	require.Len(t, parsed.Relationships, 1)

	types := map[string]bool{}
	for _, m := range parsed.Memories {
		types[m["type"].(string)] = true
	}
	assert.True(t, types["entity"])
	assert.True(t, types["fact"])
	assert.True(t, types["decision"])
}

func TestCleanMarkdownJSON_SectionRowKeepsExplicitType(t *testing.T) {
	raw := "## Entities\n" + `[{"name":"Alice","type":"custom_entity"}]`
	out, err := cleanMarkdownJSON(raw)
	require.NoError(t, err)

	var parsed struct {
		Memories []map[string]any `json:"memories"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Len(t, parsed.Memories, 1)
	assert.Equal(t, "custom_entity", parsed.Memories[0]["type"])
}

func TestCleanMarkdownJSON_EmptyInputErrors(t *testing.T) {
	_, err := cleanMarkdownJSON("   ")
	require.Error(t, err)
}

func TestCleanMarkdownJSON_SkipsMalformedSectionWithoutFailing(t *testing.T) {
	raw := "## Entities\nnot json at all\n## Facts\n" + `[{"content":"ok"}]`
	out, err := cleanMarkdownJSON(raw)
	require.NoError(t, err)

	var parsed struct {
		Memories []map[string]any `json:"memories"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Len(t, parsed.Memories, 1)
	assert.Equal(t, "fact", parsed.Memories[0]["type"])
}

func TestStripFencedCodeBlocks_PlainFenceNoLanguage(t *testing.T) {
	out := stripFencedCodeBlocks("```\nhello\n```")
	assert.Equal(t, "hello", out)
}

func TestHasSectionHeaders(t *testing.T) {
	assert.True(t, hasSectionHeaders("## Entities\n[]"))
	assert.False(t, hasSectionHeaders(`{"a":1}`))
}
