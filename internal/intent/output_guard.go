package intent

import (
	"regexp"
	"strings"
)

// OutputGuardResult is the outcome of scanning generated text before it
// reaches a caller.
type OutputGuardResult struct {
	// Leaked is true when the text contains something that should not
	// be surfaced.
	Leaked bool
	// Reasons lists the detection signals that fired.
	Reasons []string
	// Sanitized is the cleaned text when fixable, or empty when the
	// text must be dropped.
	Sanitized string
}

type outputLeakPattern struct {
	re     *regexp.Regexp
	reason string
	block  bool // block entirely, or attempt to sanitize
}

var outputLeakPatterns = []outputLeakPattern{
	// System prompt / instruction leaks
	{regexp.MustCompile(`(?i)my (system\s+)?prompt\s+(is|says|tells|instructs)`), "leak:system_prompt_disclosure", true},
	{regexp.MustCompile(`(?i)my instructions?\s+(are|say|tell|include|require)`), "leak:instructions_disclosure", true},
	{regexp.MustCompile(`(?i)i('m| am) (programmed|instructed|told|designed|configured) to`), "leak:programming_disclosure", true},
	{regexp.MustCompile(`(?i)(here are|these are|the following are)\s+(my )?(system )?(instructions|rules|guidelines|prompts)`), "leak:rules_listing", true},

	// Model identity leaks
	{regexp.MustCompile(`(?i)i('m| am) (a|an) (AI|artificial intelligence|language model|LLM|GPT|Claude|chatbot|chat bot)\b`), "leak:ai_identity", false},
	{regexp.MustCompile(`(?i)(powered by|built on|running on|using)\s+(Claude|GPT|OpenAI|Anthropic|Gemini|Bedrock|AWS)`), "leak:tech_stack", true},

	// Credential / infrastructure leaks
	{regexp.MustCompile(`(?i)(api[_\s]?key|secret[_\s]?key|access[_\s]?token|bearer\s+token)\s*[:=]\s*\S+`), "leak:credential", true},
	{regexp.MustCompile(`(?i)(sk|pk)[-_](live|test)[-_][a-zA-Z0-9]{20,}`), "leak:provider_key", true},
	{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), "leak:aws_key", true},
	{regexp.MustCompile(`(?i)(postgres|mysql|redis|mongodb)://\S+`), "leak:database_url", true},
	{regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d{2,5}`), "leak:ip_port", true},

	// Internal URL / endpoint leaks
	{regexp.MustCompile(`(?i)(api-dev|portal-dev|staging|internal)\.[a-z]+\.(com|io|net)`), "leak:internal_url", true},
	{regexp.MustCompile(`(?i)/admin/|/internal/|/debug/`), "leak:internal_path", true},

	// Cross-tenant data must never surface in generated text
	{regexp.MustCompile(`(?i)(another|other) (tenant|org|organization)'?s?\s+(data|queries|intents|records)`), "leak:other_tenant_ref", true},
}

// ScanOutputForLeaks checks generated text (clarification questions,
// handoff reasons, reasoning conclusions) for sensitive leaks.
func ScanOutputForLeaks(text string) OutputGuardResult {
	if strings.TrimSpace(text) == "" {
		return OutputGuardResult{Sanitized: text}
	}

	var reasons []string
	shouldBlock := false

	for _, p := range outputLeakPatterns {
		if p.re.MatchString(text) {
			reasons = append(reasons, p.reason)
			if p.block {
				shouldBlock = true
			}
		}
	}

	if len(reasons) == 0 {
		return OutputGuardResult{Sanitized: text}
	}

	result := OutputGuardResult{
		Leaked:  true,
		Reasons: reasons,
	}

	if shouldBlock {
		result.Sanitized = ""
	} else {
		result.Sanitized = sanitizeOutput(text)
	}

	return result
}

// sanitizeOutput strips model identity disclosures while preserving the
// rest of the sentence stream.
func sanitizeOutput(text string) string {
	cleaned := regexp.MustCompile(`(?i)[^.!?]*\bi('m| am) (a|an) (AI|artificial intelligence|language model|LLM|GPT|Claude|chatbot)\b[^.!?]*[.!?]?\s*`).ReplaceAllString(text, "")
	return strings.TrimSpace(cleaned)
}

// guardQuestions runs the leak scan over generated clarification
// questions. Blocked questions are dropped, sanitizable ones replaced.
func guardQuestions(questions []string) []string {
	if len(questions) == 0 {
		return questions
	}
	kept := questions[:0]
	for _, q := range questions {
		res := ScanOutputForLeaks(q)
		if !res.Leaked {
			kept = append(kept, q)
			continue
		}
		if res.Sanitized != "" {
			kept = append(kept, res.Sanitized)
		}
	}
	return kept
}
