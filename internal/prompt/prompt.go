// Package prompt manages the template library used for script
// generation. Official templates ship builtin; user templates are
// YAML files loaded from the configured prompt directory. English
// projects resolve the "_en" variant of an official key.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voxcut/voxcut/internal/models"
)

// Template is one prompt template. User and System may contain
// {placeholder} variables filled at render time.
type Template struct {
	Key    string `yaml:"key"`
	Name   string `yaml:"name"`
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// FeatureScriptGeneration is the feature key the script assembler
// resolves its prompt with.
const FeatureScriptGeneration = "script_generation"

// Library holds official and user templates.
type Library struct {
	official map[string]Template
	user     map[string]Template
}

// LoadLibrary builds a library from the builtin official templates
// plus any *.yaml / *.yml files found under dir. A missing directory
// is not an error; the builtins still apply.
func LoadLibrary(dir string) (*Library, error) {
	lib := &Library{
		official: make(map[string]Template),
		user:     make(map[string]Template),
	}
	for _, t := range builtinTemplates {
		lib.official[t.Key] = t
	}

	if dir == "" {
		return lib, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return lib, nil
		}
		return nil, fmt.Errorf("reading prompt dir: %w", err)
	}

	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading prompt file %s: %w", entry.Name(), err)
		}
		var t Template
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parsing prompt file %s: %w", entry.Name(), err)
		}
		if t.Key == "" {
			t.Key = strings.TrimSuffix(entry.Name(), ext)
		}
		lib.user[t.Key] = t
	}
	return lib, nil
}

// Resolve picks the template for a project's prompt choice. Official
// keys get the "_en" variant for English projects when one exists.
func (l *Library) Resolve(choice models.PromptChoice, language string) (Template, error) {
	switch choice.Type {
	case "user":
		if t, ok := l.user[choice.KeyOrID]; ok {
			return t, nil
		}
		return Template{}, models.InputInvalid("user prompt %q not found", choice.KeyOrID)
	case "official", "":
		key := choice.KeyOrID
		if key == "" {
			key = "narration_default"
		}
		if language == "en" {
			if t, ok := l.official[key+"_en"]; ok {
				return t, nil
			}
		}
		if t, ok := l.official[key]; ok {
			return t, nil
		}
		return Template{}, models.InputInvalid("official prompt %q not found", key)
	default:
		return Template{}, models.InputInvalid("unknown prompt type %q", choice.Type)
	}
}

// ResolveForProject resolves the script-generation template from a
// project's stored prompt selection.
func (l *Library) ResolveForProject(selection models.PromptSelection, language string) (Template, error) {
	return l.Resolve(selection[FeatureScriptGeneration], language)
}

// Render substitutes {name} placeholders in s.
func Render(s string, vars map[string]string) string {
	for k, v := range vars {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}
