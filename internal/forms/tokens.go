// Package forms materializes Camunda form templates for process steps:
// chooser and references slots are spliced, text placeholders replaced and
// the document stamped with its identity.
package forms

import (
	"regexp"
	"strings"
)

// Reserved placeholder tokens. Matching is case-insensitive on whole words.
const (
	TokenServiceName     = "SERVICE_NAME_PLACEHOLDER"
	TokenStepName        = "STEP_NAME_PLACEHOLDER"
	TokenStepDescription = "STEP_DESCRIPTION_PLACEHOLDER"
	TokenNextTasks       = "NEXT_TASKS_PLACEHOLDER"
	TokenReferences      = "REFERENCES_PLACEHOLDER"
	TokenChooser         = "NEXT_TASK_CHOOSER_PLACEHOLDER"
)

var (
	reServiceName     = wordPattern(TokenServiceName)
	reStepName        = wordPattern(TokenStepName)
	reStepDescription = wordPattern(TokenStepDescription)
	// The singular spelling is accepted for the next-task summary.
	reNextTasks  = regexp.MustCompile(`(?i)\bNEXT_TASKS?_PLACEHOLDER\b`)
	reReferences = wordPattern(TokenReferences)
	reChooser    = wordPattern(TokenChooser)
)

// reserved lists every token that must not survive materialization.
var reserved = []*regexp.Regexp{reServiceName, reStepName, reStepDescription, reNextTasks, reReferences, reChooser}

func wordPattern(token string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(token) + `\b`)
}

// ContainsPlaceholder reports whether s still holds a reserved token.
func ContainsPlaceholder(s string) bool {
	if !strings.Contains(strings.ToUpper(s), "_PLACEHOLDER") {
		return false
	}
	for _, re := range reserved {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// replaceLiteral replaces every match of re with repl taken literally.
func replaceLiteral(re *regexp.Regexp, s, repl string) string {
	return re.ReplaceAllLiteralString(s, repl)
}
