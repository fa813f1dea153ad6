package blueprint

import (
	"fmt"
	"sort"
)

// A normalizationRule maps one section of a raw LLM object onto the
// canonical StructuredAutomation fields. Rules are pure and applied in
// table order; within a rule the first matching source shape wins. New
// legacy shapes get a new case inside the relevant rule, the table and
// merge logic never change.
type normalizationRule struct {
	name  string
	apply func(src map[string]interface{}, sa *StructuredAutomation) []string
}

var normalizationRules = []normalizationRule{
	{"summary", normalizeSummary},
	{"steps", normalizeSteps},
	{"platforms", normalizePlatforms},
	{"agents", normalizeAgents},
	{"clarifications", normalizeClarifications},
	{"test_payloads", normalizeTestPayloads},
	{"blueprint", normalizeEmbeddedBlueprint},
	{"workflow", normalizeWorkflow},
}

func normalizeSummary(src map[string]interface{}, sa *StructuredAutomation) []string {
	if s, ok := asString(src["summary"]); ok {
		sa.Summary = s
	} else if v, present := src["summary"]; present && v != nil {
		sa.Summary = stringify(v)
		return []string{"summary: non-string value stringified"}
	}
	return nil
}

func normalizeSteps(src map[string]interface{}, sa *StructuredAutomation) []string {
	var diags []string
	collect := func(v interface{}) []string {
		if items, ok := asSlice(v); ok {
			out := make([]string, 0, len(items))
			for _, item := range items {
				out = append(out, stepText(item))
			}
			return out
		}
		// single scalar step
		return []string{stepText(v)}
	}

	if v, present := src["steps"]; present && v != nil {
		sa.Steps = collect(v)
	} else if v, present := src["step_by_step"]; present && v != nil {
		sa.Steps = collect(v)
		diags = append(diags, "steps: normalized legacy step_by_step")
	}
	return diags
}

// stepText reduces one step entry to its plain-language description.
func stepText(v interface{}) string {
	if s, ok := asString(v); ok {
		return s
	}
	if m, ok := asMap(v); ok {
		if s := firstString(m, "description", "action", "step"); s != "" {
			return s
		}
	}
	return stringify(v)
}

func normalizePlatforms(src map[string]interface{}, sa *StructuredAutomation) []string {
	var diags []string

	if items, ok := asSlice(src["platforms"]); ok {
		for _, item := range items {
			if m, ok := asMap(item); ok {
				name, _ := asString(m["name"])
				if name == "" {
					name = firstString(m, "platform")
				}
				if name == "" {
					continue
				}
				sa.Platforms = upsertPlatform(sa.Platforms, Platform{
					Name:        name,
					Credentials: credentialFields(pickCredentials(m)),
				})
			}
		}
		return nil
	}

	raw := src["platforms_and_credentials"]
	if raw == nil {
		return nil
	}
	diags = append(diags, "platforms: normalized legacy platforms_and_credentials")

	switch v := raw.(type) {
	case map[string]interface{}:
		// JSON object order is not observable here; keys are sorted so the
		// output is deterministic.
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sa.Platforms = upsertPlatform(sa.Platforms, Platform{
				Name:        name,
				Credentials: credentialFields(pickCredentials(v[name])),
			})
		}
	case []interface{}:
		for _, item := range v {
			if m, ok := asMap(item); ok {
				name := firstString(m, "name", "platform")
				if name == "" {
					continue
				}
				sa.Platforms = upsertPlatform(sa.Platforms, Platform{
					Name:        name,
					Credentials: credentialFields(pickCredentials(m)),
				})
			}
		}
	}
	return diags
}

// pickCredentials locates the credential list inside one platform entry,
// which may hold it under credentials or required_credentials, or be the
// list itself.
func pickCredentials(v interface{}) []interface{} {
	if items, ok := asSlice(v); ok {
		return items
	}
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	if items, ok := asSlice(m["credentials"]); ok {
		return items
	}
	if items, ok := asSlice(m["required_credentials"]); ok {
		return items
	}
	return nil
}

func credentialFields(items []interface{}) []CredentialField {
	fields := make([]CredentialField, 0, len(items))
	for _, item := range items {
		if s, ok := asString(item); ok {
			fields = append(fields, CredentialField{Field: s})
			continue
		}
		var f CredentialField
		if err := decodeInto(item, &f); err == nil && f.Field != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// upsertPlatform keeps platform names unique: a duplicate name replaces
// the earlier entry in place, so the last-seen definition wins while the
// list keeps the position of the first appearance.
func upsertPlatform(list []Platform, p Platform) []Platform {
	for i := range list {
		if list[i].Name == p.Name {
			list[i] = p
			return list
		}
	}
	return append(list, p)
}

func normalizeAgents(src map[string]interface{}, sa *StructuredAutomation) []string {
	var diags []string

	if items, ok := asSlice(src["agents"]); ok {
		for _, item := range items {
			if m, ok := asMap(item); ok {
				name := firstString(m, "name")
				if name == "" {
					continue
				}
				sa.Agents = upsertAgent(sa.Agents, agentFrom(name, m))
			}
		}
		return nil
	}

	legacy, ok := asMap(src["ai_agents"])
	if !ok {
		return nil
	}
	diags = append(diags, "agents: normalized legacy ai_agents")

	names := make([]string, 0, len(legacy))
	for name := range legacy {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m, ok := asMap(legacy[name])
		if !ok {
			continue
		}
		sa.Agents = upsertAgent(sa.Agents, agentFrom(name, m))
	}
	return diags
}

// agentFrom builds an Agent, accepting the alternate field names legacy
// layouts use (instructions, objective, purpose).
func agentFrom(name string, m map[string]interface{}) Agent {
	a := Agent{
		Name:      name,
		Role:      firstString(m, "role"),
		Rule:      firstString(m, "rule", "instructions"),
		Goal:      firstString(m, "goal", "objective"),
		Memory:    firstString(m, "memory"),
		WhyNeeded: firstString(m, "why_needed", "purpose"),
	}
	if items, ok := asSlice(m["test_scenarios"]); ok {
		for _, item := range items {
			a.TestScenarios = append(a.TestScenarios, stringify(item))
		}
	}
	if cfg, ok := asMap(m["custom_config"]); ok {
		a.CustomConfig = cfg
	}
	return a
}

func upsertAgent(list []Agent, a Agent) []Agent {
	for i := range list {
		if list[i].Name == a.Name {
			list[i] = a
			return list
		}
	}
	return append(list, a)
}

func normalizeClarifications(src map[string]interface{}, sa *StructuredAutomation) []string {
	items, ok := asSlice(src["clarification_questions"])
	if !ok {
		return nil
	}
	var diags []string
	for _, item := range items {
		if s, ok := asString(item); ok {
			sa.ClarificationQuestions = append(sa.ClarificationQuestions, s)
			continue
		}
		if m, ok := asMap(item); ok {
			if q, ok := asString(m["question"]); ok {
				sa.ClarificationQuestions = append(sa.ClarificationQuestions, q)
				continue
			}
		}
		sa.ClarificationQuestions = append(sa.ClarificationQuestions, stringify(item))
		diags = append(diags, fmt.Sprintf("clarifications: stringified non-string entry %T", item))
	}
	return diags
}

func normalizeTestPayloads(src map[string]interface{}, sa *StructuredAutomation) []string {
	raw, ok := asMap(src["test_payloads"])
	var diags []string
	if !ok {
		raw, ok = asMap(src["platform_test_payloads"])
		if !ok {
			return nil
		}
		diags = append(diags, "test_payloads: normalized legacy platform_test_payloads")
	}
	for platform, entry := range raw {
		var tp TestPayload
		if err := decodeInto(entry, &tp); err != nil {
			diags = append(diags, fmt.Sprintf("test_payloads: dropped malformed entry for %s", platform))
			continue
		}
		sa.TestPayloads[platform] = tp
	}
	return diags
}

func normalizeEmbeddedBlueprint(src map[string]interface{}, sa *StructuredAutomation) []string {
	raw, ok := asMap(src["execution_blueprint"])
	var diags []string
	if !ok {
		raw, ok = asMap(src["blueprint"])
		if !ok {
			return nil
		}
		diags = append(diags, "blueprint: normalized legacy blueprint key")
	}
	sa.ExecutionBlueprint = sanitizeBlueprint(raw)
	return diags
}

// normalizeWorkflow preserves raw workflow items verbatim; the extractor
// synthesizes steps from them when no explicit blueprint exists.
func normalizeWorkflow(src map[string]interface{}, sa *StructuredAutomation) []string {
	items, ok := asSlice(src["workflow"])
	if !ok {
		return nil
	}
	for _, item := range items {
		if m, ok := asMap(item); ok {
			sa.Workflow = append(sa.Workflow, m)
		}
	}
	return nil
}
