package blueprint

import (
	"strings"
	"time"
)

// ValidateForDiagram reports whether a blueprint can be visualized and
// executed: non-nil, at least one step, at least one step with a
// non-blank name. A missing trigger is default-filled to manual rather
// than rejected; that is the only mutation this guard performs.
func ValidateForDiagram(bp *ExecutionBlueprint) bool {
	if bp == nil || len(bp.Steps) == 0 {
		return false
	}
	named := false
	for i := range bp.Steps {
		if strings.TrimSpace(bp.Steps[i].Name) != "" {
			named = true
			break
		}
	}
	if !named {
		return false
	}
	if bp.Trigger.Type == "" {
		bp.Trigger.Type = TriggerManual
	}
	return true
}

// ProjectDiagram derives the metadata a diagram renderer needs. It
// returns nil unless both a blueprint and at least one described step
// exist; layout itself is a rendering concern.
func ProjectDiagram(sa *StructuredAutomation, bp *ExecutionBlueprint) *DiagramData {
	if bp == nil || sa == nil || len(sa.Steps) == 0 {
		return nil
	}

	seen := map[string]bool{}
	var platforms []string
	add := func(name string) {
		if name == "" || name == "system" || seen[name] {
			return
		}
		seen[name] = true
		platforms = append(platforms, name)
	}
	for i := range bp.Steps {
		step := &bp.Steps[i]
		if step.Platform != "" {
			add(step.Platform)
		} else {
			add(step.Action.Integration)
		}
	}
	for i := range bp.Platforms {
		add(bp.Platforms[i].Name)
	}

	return &DiagramData{
		TotalSteps:  len(bp.Steps),
		Platforms:   platforms,
		AgentCount:  len(sa.Agents),
		GeneratedAt: time.Now(),
	}
}
