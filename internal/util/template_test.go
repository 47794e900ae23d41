package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("You are the {{humanize .agent}} for {{.title}} ({{default \"unknown\" .genre}}).", map[string]any{
		"agent": "world_building_expert",
		"title": "Tom & Jerry's <Night>",
	})
	require.NoError(t, err)
	assert.Equal(t, "You are the world building expert for Tom & Jerry's <Night> (unknown).", out)
}

func TestRenderTemplate_FastPathAndErrors(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	_, err = RenderTemplate("{{ .unclosed", map[string]any{})
	assert.Error(t, err)
}
