package blueprint

import (
	"encoding/json"
	"fmt"
	"strings"
)

// structuredMarkers are the keys whose presence means a decoded object is
// an automation description rather than incidental JSON in a chat reply.
var structuredMarkers = []string{
	"error_handling",
	"performance_optimization",
	"summary",
	"step_by_step",
	"platforms_and_credentials",
	"ai_agents",
	"clarification_questions",
}

// envelope unwrap depth cap; keeps the parser total on pathological input.
const maxEnvelopeDepth = 3

// ParseResponse turns raw LLM text into a normalized structured
// automation. Plain prose is not an error: the result carries
// IsPlainText=true and a nil Structured. The function never panics; an
// unexpected failure degrades to a plain-text result.
func ParseResponse(raw string) (result ParseResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ParseResult{
				IsPlainText: true,
				Metadata:    ResponseMetadata{YusrAIPowered: true},
				Diagnostics: []string{fmt.Sprintf("parser: recovered from panic: %v", r)},
			}
		}
	}()

	candidate := extractFencedBlock(raw)

	obj, ok, diags := decodeObject(candidate, 0)
	if !ok {
		return ParseResult{IsPlainText: true, Diagnostics: diags}
	}

	if !looksStructured(obj) {
		diags = append(diags, "parser: JSON object has no automation markers, treating as prose")
		return ParseResult{IsPlainText: true, Diagnostics: diags}
	}

	sa := &StructuredAutomation{
		Steps:                  []string{},
		Platforms:              []Platform{},
		ClarificationQuestions: []string{},
		Agents:                 []Agent{},
		TestPayloads:           map[string]TestPayload{},
	}
	for _, rule := range normalizationRules {
		if d := rule.apply(obj, sa); len(d) > 0 {
			diags = append(diags, d...)
		}
	}

	normalized := mergeNormalized(obj, sa)

	return ParseResult{
		Structured:  sa,
		Normalized:  normalized,
		Metadata:    metadataFor(obj, sa),
		Diagnostics: diags,
	}
}

// extractFencedBlock returns the inner content of the first markdown code
// fence, or the input unchanged when no complete fence exists.
func extractFencedBlock(raw string) string {
	start := strings.Index(raw, "```")
	if start < 0 {
		return raw
	}
	rest := raw[start+3:]
	// skip an optional language tag like ```json
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine != "" && !strings.ContainsAny(firstLine, "{[") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return raw
	}
	return strings.TrimSpace(rest[:end])
}

// decodeObject strictly parses candidate text into a JSON object,
// unwrapping chat-layer envelopes ({"response": "<json string>"}) up to
// maxEnvelopeDepth levels.
func decodeObject(text string, depth int) (map[string]interface{}, bool, []string) {
	var decoded interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &decoded); err != nil {
		return nil, false, nil
	}
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, false, []string{"parser: top-level JSON is not an object"}
	}
	if inner, isEnvelope := asString(obj["response"]); isEnvelope {
		if depth >= maxEnvelopeDepth {
			return nil, false, []string{"parser: envelope nesting too deep"}
		}
		unwrapped, ok, diags := decodeObject(inner, depth+1)
		if !ok {
			// inner text was prose, not JSON
			return nil, false, diags
		}
		return unwrapped, true, append(diags, "parser: unwrapped response envelope")
	}
	return obj, true, nil
}

func looksStructured(obj map[string]interface{}) bool {
	for _, key := range structuredMarkers {
		if _, present := obj[key]; present {
			return true
		}
	}
	return false
}

// mergeNormalized overlays the canonical fields on top of the raw object,
// so passthrough keys (workflow, trigger_type, nested responses) stay
// available to the extractor while canonical keys are authoritative.
func mergeNormalized(src map[string]interface{}, sa *StructuredAutomation) map[string]interface{} {
	var canon map[string]interface{}
	if err := decodeInto(sa, &canon); err != nil {
		canon = map[string]interface{}{}
	}
	merged := make(map[string]interface{}, len(src)+len(canon))
	for k, v := range src {
		merged[k] = v
	}
	for k, v := range canon {
		merged[k] = v
	}
	return merged
}

func metadataFor(obj map[string]interface{}, sa *StructuredAutomation) ResponseMetadata {
	md := ResponseMetadata{YusrAIPowered: true}
	if v, ok := obj["yusrai_powered"].(bool); ok {
		md.YusrAIPowered = v
	}
	if _, present := obj["error_handling"]; present {
		md.ErrorHelpAvailable = true
	}
	md.SevenSectionsValidated = sa.Summary != "" &&
		len(sa.Steps) > 0 &&
		len(sa.Platforms) > 0 &&
		len(sa.Agents) > 0 &&
		len(sa.ClarificationQuestions) > 0 &&
		len(sa.TestPayloads) > 0 &&
		sa.ExecutionBlueprint != nil
	return md
}
