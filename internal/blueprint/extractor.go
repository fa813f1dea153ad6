package blueprint

import (
	"fmt"
	"strings"
)

// ExtractBlueprint derives the canonical execution blueprint from a
// structured automation object. The resolution order is a priority
// cascade, not a merge; the first matching source shape wins:
//
//  1. explicit execution_blueprint
//  2. explicit automation_blueprint
//  3. synthesis from a non-empty workflow array
//  4. construction from steps / platforms components
//  5. recursion into a nested yusrai_response / ai_response object
//  6. nil: nothing derivable, callers treat this as "not yet ready"
//
// Reordering these branches changes observable behavior; extend the
// cascade at the bottom only.
func ExtractBlueprint(data map[string]interface{}) *ExecutionBlueprint {
	if data == nil {
		return nil
	}

	if raw, ok := asMap(data["execution_blueprint"]); ok {
		return sanitizeBlueprint(raw)
	}
	if raw, ok := asMap(data["automation_blueprint"]); ok {
		return sanitizeBlueprint(raw)
	}
	if items, ok := asSlice(data["workflow"]); ok && len(items) > 0 {
		return blueprintFromWorkflow(items, data)
	}
	if hasSlice(data, "steps") || hasSlice(data, "platforms") {
		return blueprintFromComponents(data)
	}
	if nested, ok := asMap(data["yusrai_response"]); ok {
		return ExtractBlueprint(nested)
	}
	if nested, ok := asMap(data["ai_response"]); ok {
		return ExtractBlueprint(nested)
	}
	return nil
}

func hasSlice(data map[string]interface{}, key string) bool {
	items, ok := asSlice(data[key])
	return ok && len(items) > 0
}

// sanitizeBlueprint normalizes an explicitly provided blueprint object:
// default-fills version/description/trigger, normalizes steps, and maps
// an inner workflow array to steps when the blueprint carries no steps of
// its own. Variables, test payloads and platforms are preserved.
func sanitizeBlueprint(raw map[string]interface{}) *ExecutionBlueprint {
	bp := &ExecutionBlueprint{
		Version:     firstString(raw, "version"),
		Description: firstString(raw, "description"),
	}
	if bp.Version == "" {
		bp.Version = "1.0"
	}
	if bp.Description == "" {
		bp.Description = "Automated workflow"
	}

	if t, ok := asMap(raw["trigger"]); ok {
		_ = decodeInto(t, &bp.Trigger)
	}
	if bp.Trigger.Type == "" {
		bp.Trigger.Type = TriggerManual
	}

	if items, ok := asSlice(raw["steps"]); ok && len(items) > 0 {
		bp.Steps = sanitizeStepList(items)
	} else if items, ok := asSlice(raw["workflow"]); ok && len(items) > 0 {
		bp.Steps = workflowSteps(items)
	} else {
		bp.Steps = []Step{}
	}

	if vars, ok := asMap(raw["variables"]); ok {
		bp.Variables = vars
	}
	carryPayloadsAndPlatforms(raw, bp)
	return bp
}

func sanitizeStepList(items []interface{}) []Step {
	steps := make([]Step, 0, len(items))
	for i, raw := range items {
		if s, ok := asString(raw); ok {
			steps = append(steps, Step{
				ID:   fmt.Sprintf("step-%d", i+1),
				Name: s,
				Type: "action",
				Action: StepAction{
					Integration: "system",
					Method:      "execute",
					Parameters:  map[string]interface{}{"description": s},
				},
			})
			continue
		}
		m, ok := asMap(raw)
		if !ok {
			continue
		}
		step := Step{
			ID:               firstString(m, "id"),
			Name:             firstString(m, "name"),
			Type:             firstString(m, "type"),
			Platform:         firstString(m, "platform"),
			SuccessCondition: firstString(m, "success_condition"),
		}
		if step.ID == "" {
			step.ID = fmt.Sprintf("step-%d", i+1)
		}
		if step.Type == "" {
			step.Type = "action"
		}
		if eh, ok := asMap(m["error_handling"]); ok {
			step.ErrorHandling = eh
		}
		if owd, ok := asMap(m["originalWorkflowData"]); ok {
			step.OriginalWorkflowData = owd
		}
		if action, ok := asMap(m["action"]); ok {
			_ = decodeInto(action, &step.Action)
		} else {
			// tolerate flattened steps carrying the action fields directly
			step.Action.Integration = firstString(m, "integration")
			step.Action.Method = firstString(m, "method")
			if params, ok := asMap(m["parameters"]); ok {
				step.Action.Parameters = params
			}
		}
		if step.Action.Integration == "" {
			step.Action.Integration = "system"
		}
		if step.Action.Method == "" {
			step.Action.Method = "execute"
		}
		steps = append(steps, step)
	}
	return steps
}

// blueprintFromWorkflow synthesizes a blueprint from pre-normalization
// workflow items. Each item keeps its full original payload both inside
// the step parameters and as OriginalWorkflowData for diagram/audit use.
func blueprintFromWorkflow(items []interface{}, data map[string]interface{}) *ExecutionBlueprint {
	bp := &ExecutionBlueprint{
		Version:     "1.0",
		Description: firstString(data, "summary", "description"),
		Trigger:     triggerFrom(data),
		Steps:       workflowSteps(items),
	}
	if bp.Description == "" {
		bp.Description = "Automated workflow"
	}
	carryPayloadsAndPlatforms(data, bp)
	return bp
}

func workflowSteps(items []interface{}) []Step {
	steps := make([]Step, 0, len(items))
	for i, raw := range items {
		item, ok := asMap(raw)
		if !ok {
			item = map[string]interface{}{"description": stringify(raw)}
		}

		name := firstString(item, "action", "step")
		if name == "" {
			name = fmt.Sprintf("Step %d", i+1)
		}

		params := map[string]interface{}{}
		if p, ok := asMap(item["parameters"]); ok {
			for k, v := range p {
				params[k] = v
			}
		}
		for _, key := range []string{"description", "platform", "details"} {
			if v, present := item[key]; present {
				params[key] = v
			}
		}
		original := map[string]interface{}{}
		for _, key := range []string{"action", "step", "platform", "method"} {
			if v, present := item[key]; present {
				original[key] = v
			}
		}
		if len(original) > 0 {
			params["original"] = original
		}
		params["workflow_item"] = item

		integration := firstString(item, "platform")
		if integration == "" {
			integration = "system"
		}
		method := firstString(item, "method")
		if method == "" {
			method = "execute"
		}

		step := Step{
			ID:               fmt.Sprintf("workflow-step-%d", i+1),
			Name:             name,
			Type:             "action",
			Action:           StepAction{Integration: integration, Method: method, Parameters: params},
			Platform:         firstString(item, "platform"),
			SuccessCondition: firstString(item, "success_condition"),
			OriginalWorkflowData: item,
		}
		if eh, ok := asMap(item["error_handling"]); ok {
			step.ErrorHandling = eh
		}
		steps = append(steps, step)
	}
	return steps
}

// blueprintFromComponents builds a blueprint from plain step descriptions
// and the platform list: each string step becomes a generic system
// action, each platform one integration step appended after them.
func blueprintFromComponents(data map[string]interface{}) *ExecutionBlueprint {
	bp := &ExecutionBlueprint{
		Version:     "1.0",
		Description: firstString(data, "summary", "description"),
		Trigger:     triggerFrom(data),
		Steps:       []Step{},
	}
	if bp.Description == "" {
		bp.Description = "Automated workflow"
	}

	n := 0
	if items, ok := asSlice(data["steps"]); ok {
		for _, raw := range items {
			n++
			if s, ok := asString(raw); ok {
				bp.Steps = append(bp.Steps, Step{
					ID:   fmt.Sprintf("step-%d", n),
					Name: s,
					Type: "action",
					Action: StepAction{
						Integration: "system",
						Method:      "execute",
						Parameters:  map[string]interface{}{"description": s},
					},
				})
				continue
			}
			if m, ok := asMap(raw); ok {
				sanitized := sanitizeStepList([]interface{}{m})
				if len(sanitized) == 1 {
					step := sanitized[0]
					step.ID = fmt.Sprintf("step-%d", n)
					bp.Steps = append(bp.Steps, step)
				}
			}
		}
	}

	if items, ok := asSlice(data["platforms"]); ok {
		for _, raw := range items {
			m, ok := asMap(raw)
			if !ok {
				continue
			}
			name := firstString(m, "name", "platform")
			if name == "" {
				continue
			}
			n++
			bp.Steps = append(bp.Steps, Step{
				ID:       fmt.Sprintf("step-%d", n),
				Name:     name + " Integration",
				Type:     "action",
				Platform: name,
				Action: StepAction{
					Integration: strings.ToLower(name),
					Method:      "execute",
					Parameters:  map[string]interface{}{"platform": name},
				},
			})
		}
	}

	carryPayloadsAndPlatforms(data, bp)
	return bp
}

func triggerFrom(data map[string]interface{}) Trigger {
	t := Trigger{
		Type:     firstString(data, "trigger_type"),
		Platform: firstString(data, "trigger_platform"),
	}
	if t.Type == "" {
		t.Type = TriggerManual
	}
	if cfg, ok := asMap(data["trigger_configuration"]); ok {
		t.Configuration = cfg
	}
	return t
}

func carryPayloadsAndPlatforms(src map[string]interface{}, bp *ExecutionBlueprint) {
	if raw, ok := asMap(src["test_payloads"]); ok {
		payloads := map[string]TestPayload{}
		if err := decodeInto(raw, &payloads); err == nil && len(payloads) > 0 {
			bp.TestPayloads = payloads
		}
	}
	if raw, ok := asSlice(src["platforms"]); ok && len(raw) > 0 {
		var platforms []Platform
		if err := decodeInto(raw, &platforms); err == nil {
			bp.Platforms = platforms
		}
	}
}
