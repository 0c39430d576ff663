package gateway

import (
	"encoding/json"
	"strings"
)

// An Extractor looks for a human readable message in a decoded error body.
// Extractors never fail; they report false when their shape is absent.
type Extractor func(body map[string]any) (string, bool)

// Extractors are tried in order by ExtractMessage.
var Extractors = []Extractor{
	TopLevelMessage,
	DetailMessage,
	DetailString,
	DetailList,
	TopLevelErrorMessage,
}

// TopLevelMessage matches {"message": "..."}.
func TopLevelMessage(body map[string]any) (string, bool) {
	return stringField(body, "message")
}

// DetailMessage matches {"detail": {"message": "..."}}.
func DetailMessage(body map[string]any) (string, bool) {
	detail, ok := body["detail"].(map[string]any)
	if !ok {
		return "", false
	}
	return stringField(detail, "message")
}

// DetailString matches {"detail": "..."}.
func DetailString(body map[string]any) (string, bool) {
	s, ok := body["detail"].(string)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

// DetailList matches request validation errors of the form
// {"detail": [{"msg": "..."}, ...]}, returning the first message.
func DetailList(body map[string]any) (string, bool) {
	items, ok := body["detail"].([]any)
	if !ok {
		return "", false
	}
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			if msg, ok := stringField(m, "msg"); ok {
				return msg, true
			}
		}
	}
	return "", false
}

// TopLevelErrorMessage matches {"error_message": "..."}.
func TopLevelErrorMessage(body map[string]any) (string, bool) {
	return stringField(body, "error_message")
}

// ExtractMessage returns the first message found in body by Extractors,
// or fallback when body is not a JSON object or none of them match.
func ExtractMessage(body []byte, fallback string) string {
	decoded, ok := decodeObject(body)
	if !ok {
		return fallback
	}
	for _, extract := range Extractors {
		if msg, ok := extract(decoded); ok {
			return msg
		}
	}
	return fallback
}

// ExtractCode returns the provider error code from {"detail": {"error_code": "..."}}
// or {"error_code": "..."}, if present.
func ExtractCode(body []byte) string {
	decoded, ok := decodeObject(body)
	if !ok {
		return ""
	}
	if detail, ok := decoded["detail"].(map[string]any); ok {
		if code, ok := stringField(detail, "error_code"); ok {
			return code
		}
	}
	code, _ := stringField(decoded, "error_code")
	return code
}

func decodeObject(body []byte) (map[string]any, bool) {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil || decoded == nil {
		return nil, false
	}
	return decoded, true
}

func stringField(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}
