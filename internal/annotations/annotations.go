// Package annotations reads label-studio style tags attached to tog tasks.
package annotations

import "strings"

const (
	FromNameIntent   = "tag"
	FromNameGoldData = "gold-data"

	IncorrectTranscriptLabel  = "Incorrect Transcript"
	GoldReadyForTrainingLabel = "[GOLD] Ready for Training"
)

// findValue returns the value object of the first tag entry from fromName.
func findValue(tag any, fromName string) map[string]any {
	entries, ok := tag.([]any)
	if !ok {
		return nil
	}
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if name, _ := entry["from_name"].(string); name == fromName {
			value, _ := entry["value"].(map[string]any)
			return value
		}
	}
	return nil
}

// firstLabel reads choices[0] or taxonomy[0][0] from a value object. Older
// tags put taxonomy answers under choices, so both are accepted.
func firstLabel(value map[string]any) (string, bool) {
	if choices, ok := value["choices"].([]any); ok && len(choices) > 0 {
		s, ok := choices[0].(string)
		return s, ok
	}
	if taxonomy, ok := value["taxonomy"].([]any); ok && len(taxonomy) > 0 {
		if path, ok := taxonomy[0].([]any); ok && len(path) > 0 {
			s, ok := path[0].(string)
			return s, ok
		}
	}
	return "", false
}

// ExtractIntent returns the intent label of a tag, if any.
func ExtractIntent(tag any) (string, bool) {
	value := findValue(tag, FromNameIntent)
	if value == nil {
		return "", false
	}
	return firstLabel(value)
}

// HasLabel reports whether the fromName entry carries label, ignoring case.
func HasLabel(tag any, fromName, label string) bool {
	value := findValue(tag, fromName)
	if value == nil {
		return false
	}
	got, ok := firstLabel(value)
	return ok && strings.EqualFold(got, label)
}

// IncorrectTranscript reports whether annotators flagged the transcript.
func IncorrectTranscript(tag any) bool {
	return HasLabel(tag, FromNameGoldData, IncorrectTranscriptLabel)
}

// GoldReadyForTraining reports whether the task was promoted to gold.
func GoldReadyForTraining(tag any) bool {
	return HasLabel(tag, FromNameGoldData, GoldReadyForTrainingLabel)
}
