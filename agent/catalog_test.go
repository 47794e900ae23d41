package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/novelmesh/core"
)

func TestLoadCatalog(t *testing.T) {
	src := `
defaults:
  model: mock/test
  temperature: 0.3
  max_tokens: 512
agents:
  - name: creative_director
    role: director
    output_key: creative_direction
  - name: structure_architect
    model: openai/gpt-4o
    required_fields: [creative_direction]
`
	c, err := LoadCatalog(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"creative_director", "structure_architect"}, c.Names())

	cd, ok := c.Lookup("creative_director")
	require.True(t, ok)
	assert.Equal(t, "mock/test", cd.Model)
	assert.Equal(t, 0.3, cd.Temperature)
	assert.Equal(t, RoleDirector, cd.Role)

	sa, _ := c.Lookup("structure_architect")
	assert.Equal(t, "openai/gpt-4o", sa.Model)
	assert.Equal(t, RoleSpecialist, sa.Role)
	assert.Equal(t, []string{"creative_direction"}, sa.RequiredFields)
}

func TestLoadCatalog_Errors(t *testing.T) {
	cases := map[string]string{
		"duplicate":     "agents:\n  - {name: a, model: mock/x}\n  - {name: a, model: mock/x}\n",
		"no model":      "agents:\n  - {name: a}\n",
		"unknown field": "agents:\n  - {name: a, model: mock/x, colour: red}\n",
		"no name":       "agents:\n  - {model: mock/x}\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCatalog(strings.NewReader(src))
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfiguration)
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Greater(t, c.Len(), 40)

	ed, ok := c.Lookup("editorial_director")
	require.True(t, ok)
	assert.Equal(t, RoleDirector, ed.Role)
	assert.Equal(t, DefaultDirectorModel, ed.Model)

	rc, ok := c.Lookup("rhythm_cadence_optimizer")
	require.True(t, ok)
	assert.Equal(t, "style_metrics", rc.OutputKey)

	mocked := c.WithModel("mock/any")
	s, _ := mocked.Lookup("editorial_director")
	assert.Equal(t, "mock/any", s.Model)
	s, _ = c.Lookup("editorial_director")
	assert.Equal(t, DefaultDirectorModel, s.Model)
}
