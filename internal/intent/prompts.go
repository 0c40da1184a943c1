package intent

import (
	"fmt"
	"strings"
)

// How many recent turns get folded into escalation prompts.
const maxPromptTurns = 6

const alternativesPrompt = `The query below was classified as intent %q with confidence %.2f, which is too low to act on. Suggest alternative intents the user might have meant. Respond with JSON only.

%s%sQuery: %s

Respond with: {"alternatives": [{"intent": "<name>", "confidence": <0.0-1.0>, "reason": "<one short sentence>"}]}`

const generalizedPrompt = `Classify the query below into a broad intent category of your choosing, such as "information_request", "account_action", "troubleshooting", or "purchase". Do not limit yourself to any predefined intent list. Respond with JSON only.

%sQuery: %s

Respond with: {"intent": "<broad_category>", "confidence": <0.0-1.0>, "reasoning": "<one short sentence>"}`

const partialPrompt = `The query below could not be fully classified. Extract whatever partial intent and entities you can identify, and list what information is missing to resolve the request. Respond with JSON only.

%sQuery: %s

Respond with: {"intent": "<partial_intent_or_empty>", "entities": [{"name": "<entity_name>", "value": "<entity_value>", "confidence": <0.0-1.0>}], "missing": ["<missing information>"]}`

const reasoningPrompt = `Work through the query below step by step: parse the request, identify entities, consider possible approaches, analyze constraints, plan a response, and refine it. Respond with JSON only.

%sQuery: %s

Respond with: {"steps": [{"step": 1, "description": "<what this step does>", "outcome": "<what was concluded>"}], "entities": [{"name": "<name>", "value": "<value>", "confidence": <0.0-1.0>}], "suggested_actions": ["<action>"], "conclusion": "<overall conclusion>", "confidence": <0.0-1.0>}`

const verificationPrompt = `Review the reasoning below for errors: unsupported leaps, misread entities, or conclusions the steps do not justify. Respond with JSON only.

Query: %s

Reasoning steps:
%s
Conclusion: %s

If the reasoning holds, respond with: {"is_valid": true, "confidence": <0.0-1.0>}
If it does not, respond with: {"is_valid": false, "corrections": [{"step": <1-based step number>, "outcome": "<corrected outcome>"}], "conclusion": "<corrected conclusion>", "confidence": <0.0-1.0>}`

// formatContext renders the bounded recent-turns window for prompts,
// oldest turn first. Empty when there is no usable context.
func formatContext(conv *Context) string {
	turns := conv.recentTurns(maxPromptTurns)
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, m := range turns {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	b.WriteString("\n")
	return b.String()
}

// formatCatalog renders the registered intents for prompts that should
// stay grounded in the tenant's intent set.
func formatCatalog(model *Model) string {
	if model == nil || model.Len() == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Registered intents:\n")
	for _, def := range model.Definitions() {
		if def.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", def.Name)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// formatSteps renders reasoning steps for the verification prompt.
func formatSteps(steps []ReasoningStep) string {
	var b strings.Builder
	for _, step := range steps {
		fmt.Fprintf(&b, "%d. %s: %s\n", step.Number, step.Description, step.Outcome)
	}
	return b.String()
}
