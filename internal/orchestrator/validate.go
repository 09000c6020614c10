package orchestrator

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"maestro/internal/ports"
	"maestro/internal/roles"
	"maestro/internal/shared/jsonx"
)

// validateDecisionInput checks a controller decision's tool_input against the
// chosen tool's declared schema. The result is advisory: the orchestrator
// trusts the controller and only warns on mismatch.
func validateDecisionInput(decision *roles.ControllerDecision, def ports.ToolDefinition) error {
	if decision.ToolName == nil {
		return nil
	}
	if decision.ToolInput == nil {
		if len(def.Parameters.Required) > 0 {
			return fmt.Errorf("tool %s requires input %v but the controller supplied none",
				def.Name, def.Parameters.Required)
		}
		return nil
	}

	schemaBytes, err := jsonx.Marshal(def.Parameters)
	if err != nil {
		return fmt.Errorf("encode schema for %s: %w", def.Name, err)
	}
	var schemaDoc any
	if err := jsonx.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return fmt.Errorf("decode schema for %s: %w", def.Name, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("tool.json")
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", def.Name, err)
	}

	// Round-trip the input so validation sees plain JSON types.
	inputBytes, err := jsonx.Marshal(decision.ToolInput)
	if err != nil {
		return fmt.Errorf("encode tool input: %w", err)
	}
	var instance any
	if err := jsonx.Unmarshal(inputBytes, &instance); err != nil {
		return fmt.Errorf("decode tool input: %w", err)
	}
	return schema.Validate(instance)
}
