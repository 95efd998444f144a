package assist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionTableCoversAllActionTypes(t *testing.T) {
	actions := Actions()
	for _, name := range []string{"improve", "grammar", "style", "summarize", "expand", "brainstorm", "research", "caption"} {
		a, ok := actions[name]
		require.True(t, ok, "missing action %s", name)
		assert.Equal(t, name, a.Name)
		assert.NotEmpty(t, a.AgentID)
		assert.NotEmpty(t, a.Instructions)
		assert.NotEmpty(t, a.ResponseKey)
	}
	assert.True(t, actions["research"].UsesTools)
	assert.False(t, actions["improve"].UsesTools)
}

func TestWritingPromptPrefersSelection(t *testing.T) {
	improve := Actions()["improve"]

	content, parts := improve.Prompt(&Params{Content: "whole document"})
	assert.Nil(t, parts)
	assert.Contains(t, content, "Content:\nwhole document")

	content, _ = improve.Prompt(&Params{
		Content:     "whole document",
		Selection:   "just this bit",
		FullContent: "whole document",
	})
	assert.Contains(t, content, "Selected passage:\njust this bit")
	assert.Contains(t, content, "Full document for reference:\nwhole document")
	assert.NotContains(t, content, "Content:\nwhole document")
}

func TestSummarizeDefaultsToWordLimit(t *testing.T) {
	summarize := Actions()["summarize"]

	content, _ := summarize.Prompt(&Params{Content: "text"})
	assert.Contains(t, content, "at most 150 words")

	content, _ = summarize.Prompt(&Params{Content: "text", MaxWords: 40})
	assert.Contains(t, content, "at most 40 words")
}

func TestBrainstormDefaultsToFiveIdeas(t *testing.T) {
	brainstorm := Actions()["brainstorm"]

	content, _ := brainstorm.Prompt(&Params{Topic: "chapter titles"})
	assert.Contains(t, content, "generate 5 creative ideas")
	assert.Contains(t, content, "chapter titles")

	content, _ = brainstorm.Prompt(&Params{Topic: "chapter titles", NumberOfIdeas: 12})
	assert.Contains(t, content, "generate 12 creative ideas")
}

func TestResearchPromptCarriesDepth(t *testing.T) {
	research := Actions()["research"]

	content, _ := research.Prompt(&Params{Topic: "tidal power"})
	assert.Contains(t, content, "(standard depth)")

	content, _ = research.Prompt(&Params{Topic: "tidal power", Depth: "deep"})
	assert.Contains(t, content, "(deep depth)")
}

func TestCaptionPromptBuildsImageParts(t *testing.T) {
	caption := Actions()["caption"]

	content, parts := caption.Prompt(&Params{ImageData: "Zm9v", ImageMime: "image/png"})
	assert.Contains(t, content, "Detail level: medium")
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "image", parts[1].Type)
	assert.Equal(t, "Zm9v", parts[1].Data)
	assert.Equal(t, "image/png", parts[1].MimeType)
}

func TestValidateRejectsMissingInputs(t *testing.T) {
	actions := Actions()
	cases := []struct {
		action string
		params Params
		param  string
	}{
		{"improve", Params{}, "content"},
		{"style", Params{}, "content"},
		{"brainstorm", Params{Context: "x"}, "topic"},
		{"research", Params{}, "topic"},
		{"caption", Params{ImageMime: "image/png"}, "image_data"},
		{"caption", Params{ImageData: "Zm9v"}, "image_mime"},
	}
	for _, tc := range cases {
		p := tc.params
		err := actions[tc.action].Validate(&p)
		var ipe *InvalidParametersError
		require.ErrorAs(t, err, &ipe, "%s should reject", tc.action)
		assert.Equal(t, tc.param, ipe.Param)
	}
}
