package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxcut/voxcut/internal/models"
)

func TestLoadLibraryWithUserTemplates(t *testing.T) {
	dir := t.TempDir()
	content := `key: my_style
name: My Style
system: "Custom system for {drama_name}"
user: "{subtitle_content}"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "my_style.yaml"), []byte(content), 0o644))

	lib, err := LoadLibrary(dir)
	require.NoError(t, err)

	tpl, err := lib.Resolve(models.PromptChoice{Type: "user", KeyOrID: "my_style"}, "zh")
	require.NoError(t, err)
	assert.Equal(t, "My Style", tpl.Name)
}

func TestLoadLibraryMissingDir(t *testing.T) {
	lib, err := LoadLibrary(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	_, err = lib.Resolve(models.PromptChoice{Type: "official", KeyOrID: "narration_default"}, "zh")
	assert.NoError(t, err)
}

func TestResolveLanguageVariant(t *testing.T) {
	lib, err := LoadLibrary("")
	require.NoError(t, err)

	zh, err := lib.Resolve(models.PromptChoice{Type: "official", KeyOrID: "narration_default"}, "zh")
	require.NoError(t, err)
	assert.Equal(t, "narration_default", zh.Key)

	en, err := lib.Resolve(models.PromptChoice{Type: "official", KeyOrID: "narration_default"}, "en")
	require.NoError(t, err)
	assert.Equal(t, "narration_default_en", en.Key)

	// empty choice falls back to the default official template
	def, err := lib.Resolve(models.PromptChoice{}, "zh")
	require.NoError(t, err)
	assert.Equal(t, "narration_default", def.Key)

	_, err = lib.Resolve(models.PromptChoice{Type: "user", KeyOrID: "nope"}, "zh")
	assert.ErrorIs(t, err, models.ErrInputInvalid)
}

func TestRender(t *testing.T) {
	out := Render("Series {drama_name}: {subtitle_content}", map[string]string{
		"drama_name":       "Westward",
		"subtitle_content": "[00:00:01,000-00:00:02,000] hi",
	})
	assert.Equal(t, "Series Westward: [00:00:01,000-00:00:02,000] hi", out)
	// unknown placeholders stay literal
	assert.Equal(t, "{unknown}", Render("{unknown}", nil))
}
