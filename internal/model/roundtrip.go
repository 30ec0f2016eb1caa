package model

import "encoding/json"

// MarshalJSON merges Pattern's known fields with any preserved Unknown
// keys, so a pattern file read and written back stays byte-identical
// modulo key ordering (§6.1 forward-compatibility, §8 round-trip law).
func (p Pattern) MarshalJSON() ([]byte, error) {
	type alias Pattern
	known, err := json.Marshal(alias(p))
	if err != nil {
		return nil, err
	}
	return mergeUnknown(known, p.Unknown)
}

// UnmarshalJSON decodes the known fields and stashes every other key in
// Unknown for later round-tripping.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	type alias Pattern
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = Pattern(a)
	p.Unknown = extractUnknown(data, knownPatternKeys)
	return nil
}

func (t FixTemplate) MarshalJSON() ([]byte, error) {
	type alias FixTemplate
	known, err := json.Marshal(alias(t))
	if err != nil {
		return nil, err
	}
	return mergeUnknown(known, t.Unknown)
}

func (t *FixTemplate) UnmarshalJSON(data []byte) error {
	type alias FixTemplate
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*t = FixTemplate(a)
	t.Unknown = extractUnknown(data, knownFixTemplateKeys)
	return nil
}

var knownPatternKeys = map[string]bool{
	"id": true, "name": true, "category": true, "regexes": true,
	"keywords": true, "context_requirements": true, "base_confidence": true,
	"success_rate": true, "occurrence_count": true, "source": true,
	"created_at": true, "updated_at": true, "enabled": true, "disabled_reason": true,
}

var knownFixTemplateKeys = map[string]bool{
	"id": true, "name": true, "description": true, "pattern_ids": true,
	"steps": true, "risk": true, "estimated_time": true, "success_rate": true,
	"prerequisites": true, "validation_steps": true,
}

func extractUnknown(data []byte, known map[string]bool) map[string]interface{} {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	var unknown map[string]interface{}
	for k, v := range raw {
		if known[k] {
			continue
		}
		if unknown == nil {
			unknown = map[string]interface{}{}
		}
		unknown[k] = v
	}
	return unknown
}

func mergeUnknown(known []byte, unknown map[string]interface{}) ([]byte, error) {
	if len(unknown) == 0 {
		return known, nil
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range unknown {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
