package scaffolding

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// loadQuestionnaireFile parses a single YAML questionnaire document
// (agent.questionnaire_file) into the {"sections": [...]} shape
// applySectionsSchema expects.
func loadQuestionnaireFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scaffolding: read questionnaire file %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("scaffolding: parse questionnaire file %s: %w", path, err)
	}
	return doc, nil
}

// loadQuestionnaireDir discovers every *.yaml/*.yml file under dir (recursive
// ** glob support, matching the teacher's doublestar.FilepathGlob usage) and
// concatenates their "sections" arrays into one document, in lexical order.
func loadQuestionnaireDir(dir string) (map[string]any, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(dir, "**", "*.{yaml,yml}"))
	if err != nil {
		return nil, fmt.Errorf("scaffolding: glob questionnaire dir %s: %w", dir, err)
	}
	sort.Strings(matches)

	var sections []any
	for _, path := range matches {
		doc, err := loadQuestionnaireFile(path)
		if err != nil {
			return nil, err
		}
		if raw, ok := doc["sections"].([]any); ok {
			sections = append(sections, raw...)
		}
	}
	return map[string]any{"sections": sections}, nil
}
