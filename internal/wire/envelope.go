package wire

// Candidate field names for list envelopes, tried in order both at the
// root and under a nested "data" object.
var listKeys = []string{"items", "conversations", "chats", "history", "results", "entries", "data"}

// UnwrapList locates the conversation array inside an unknown envelope
// shape. A bare array is returned as-is; otherwise the candidate keys are
// tried at the root, then under root.data. Reports false when no array is
// found; callers must not assume a particular envelope.
func UnwrapList(root any) ([]any, bool) {
	if arr, ok := root.([]any); ok {
		return arr, true
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range listKeys {
		if arr, ok := obj[key].([]any); ok {
			return arr, true
		}
	}
	if nested, ok := obj["data"].(map[string]any); ok {
		for _, key := range listKeys {
			if arr, ok := nested[key].([]any); ok {
				return arr, true
			}
		}
	}
	return nil, false
}
