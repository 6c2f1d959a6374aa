package script

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/voxcut/voxcut/internal/models"
)

var (
	codeFenceRe     = regexp.MustCompile("```(?:json)?\\s*")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// smartQuoteReplacer maps typographic quotes the model sometimes
// emits as JSON delimiters back to straight quotes.
var smartQuoteReplacer = strings.NewReplacer(
	"“", `"`, // left double
	"”", `"`, // right double
	"‘", "'", // left single
	"’", "'", // right single
)

// CleanAndParse is the single entry point for LM responses. It
// tolerates code fences, prose around the JSON object, trailing
// commas and smart quotes, and returns the validated item list.
// Items with malformed timestamps or OST flags are dropped; an empty
// result is an error.
func CleanAndParse(raw string) (*ItemList, error) {
	candidates := []string{raw}

	cleaned := cleanJSON(raw)
	if cleaned != raw {
		candidates = append(candidates, cleaned)
	}
	requoted := smartQuoteReplacer.Replace(cleaned)
	if requoted != cleaned {
		candidates = append(candidates, cleanJSON(requoted))
	}

	var list ItemList
	var lastErr error
	parsed := false
	for _, candidate := range candidates {
		list = ItemList{}
		if err := json.Unmarshal([]byte(candidate), &list); err != nil {
			lastErr = err
			continue
		}
		parsed = true
		break
	}
	if !parsed {
		return nil, models.ProviderUnavailable("llm response is not valid JSON: %v", lastErr)
	}
	if list.Items == nil {
		return nil, models.ProviderUnavailable("llm response has no items array")
	}

	valid := list.Items[:0]
	for i := range list.Items {
		it := list.Items[i]
		if it.OST != 0 && it.OST != 1 {
			continue
		}
		if !parseItemTimes(&it) {
			continue
		}
		valid = append(valid, it)
	}
	list.Items = valid
	if len(list.Items) == 0 {
		return nil, models.ProviderUnavailable("llm response contained no usable items")
	}
	return &list, nil
}

// cleanJSON strips code fences, extracts the outermost object and
// removes trailing commas.
func cleanJSON(s string) string {
	s = codeFenceRe.ReplaceAllString(s, "")

	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first >= 0 && last > first {
		s = s[first : last+1]
	}

	return trailingCommaRe.ReplaceAllString(s, "$1")
}
