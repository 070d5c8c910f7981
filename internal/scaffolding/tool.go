package scaffolding

// Tool describes one entry of the tool catalog advertised to the upstream
// LLM in session.update (spec.md §6.3 agent.tools).
type Tool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// normalizeTools accepts either a single tool mapping or a sequence of tool
// mappings (spec.md §6.3: "agent.tools | Mapping or sequence of mappings")
// and returns an ordered Tool slice.
func normalizeTools(raw any) []Tool {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		out := make([]Tool, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, toolFromMap(m))
			}
		}
		return out
	case []map[string]any:
		out := make([]Tool, 0, len(v))
		for _, m := range v {
			out = append(out, toolFromMap(m))
		}
		return out
	case map[string]any:
		return []Tool{toolFromMap(v)}
	default:
		return nil
	}
}

func toolFromMap(m map[string]any) Tool {
	t := Tool{Type: "function"}
	if s, ok := m["type"].(string); ok && s != "" {
		t.Type = s
	}
	if s, ok := m["name"].(string); ok {
		t.Name = s
	}
	if s, ok := m["description"].(string); ok {
		t.Description = s
	}
	if p, ok := m["parameters"].(map[string]any); ok {
		t.Parameters = p
	}
	return t
}

// mergeTools merges discovered tools into static, keeping static's entry on
// any name collision (SPEC_FULL.md SUPPLEMENTED FEATURES: "static wins on conflict").
func mergeTools(static, discovered []Tool) []Tool {
	seen := make(map[string]bool, len(static))
	out := append([]Tool(nil), static...)
	for _, t := range static {
		seen[t.Name] = true
	}
	for _, t := range discovered {
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		out = append(out, t)
	}
	return out
}
