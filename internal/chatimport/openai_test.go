package chatimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIParser_TreeParse(t *testing.T) {
	raw := []byte(`{
		"mapping": {
			"n1": {
				"id": "n1",
				"message": {
					"id": "m1",
					"author": {"role": "user"},
					"content": {"parts": ["Hello"]},
					"create_time": 1234567890
				},
				"parent": null,
				"children": []
			}
		},
		"title": "T"
	}`)

	p := NewOpenAIParser()
	require.True(t, p.CanParse(raw))

	convs, err := p.Parse(raw)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	conv := convs[0]
	assert.Equal(t, "openai", conv.Provider)
	assert.Equal(t, "T", conv.Title)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
}

func TestOpenAIParser_LinearizesChildrenInOrder(t *testing.T) {
	raw := []byte(`{
		"mapping": {
			"root": {"id": "root", "message": null, "parent": null, "children": ["a"]},
			"a": {
				"id": "a",
				"message": {"id": "m-a", "author": {"role": "user"}, "content": {"parts": ["first"]}},
				"parent": "root",
				"children": ["b"]
			},
			"b": {
				"id": "b",
				"message": {"id": "m-b", "author": {"role": "assistant"}, "content": {"parts": ["second"]}},
				"parent": "a",
				"children": []
			}
		},
		"title": "chain"
	}`)

	p := NewOpenAIParser()
	convs, err := p.Parse(raw)
	require.NoError(t, err)
	require.Len(t, convs[0].Messages, 2)
	assert.Equal(t, "first", convs[0].Messages[0].Content)
	assert.Equal(t, "second", convs[0].Messages[1].Content)
}

func TestOpenAIParser_CanParseRejectsNonMatchingInput(t *testing.T) {
	p := NewOpenAIParser()
	assert.False(t, p.CanParse([]byte(`{"chat_messages": []}`)))
	assert.False(t, p.CanParse([]byte(`not json`)))
}
