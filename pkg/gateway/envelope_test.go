package gateway

import (
	"encoding/json"
	"testing"
	"time"
)

func TestExtractMessage_Order(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"message wins over detail", `{"message":"first","detail":{"message":"second"}}`, "first"},
		{"blank message skipped", `{"message":"  ","detail":"second"}`, "second"},
		{"detail object without message", `{"detail":{"error_code":"INS-1"},"error_message":"third"}`, "third"},
		{"non-string message", `{"message":42}`, "fallback"},
		{"array body", `[1,2]`, "fallback"},
		{"null body", `null`, "fallback"},
		{"invalid json", `{`, "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractMessage([]byte(tt.body), "fallback"); got != tt.expected {
				t.Errorf("ExtractMessage() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestExtractCode(t *testing.T) {
	if got := ExtractCode([]byte(`{"detail":{"error_code":"INS-2006"}}`)); got != "INS-2006" {
		t.Errorf("nested code = %q", got)
	}
	if got := ExtractCode([]byte(`{"error_code":"INS-9"}`)); got != "INS-9" {
		t.Errorf("top-level code = %q", got)
	}
	if got := ExtractCode([]byte(`oops`)); got != "" {
		t.Errorf("invalid body code = %q", got)
	}
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Time
	}{
		{`"2025-12-17T10:30:00Z"`, time.Date(2025, 12, 17, 10, 30, 0, 0, time.UTC)},
		{`"2025-12-17T12:30:00+02:00"`, time.Date(2025, 12, 17, 10, 30, 0, 0, time.UTC)},
		{`"2025-12-17T10:30:00"`, time.Date(2025, 12, 17, 10, 30, 0, 0, time.UTC)},
		{`"2025-12-17 10:30:00.5"`, time.Date(2025, 12, 17, 10, 30, 0, 500000000, time.UTC)},
		{`null`, time.Time{}},
	}

	for _, tt := range tests {
		var ts Timestamp
		if err := json.Unmarshal([]byte(tt.input), &ts); err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", tt.input, err)
			continue
		}
		if !ts.Equal(tt.expected) {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.input, ts.Time, tt.expected)
		}
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Error("expected error for unparseable timestamp")
	}

	data, err := json.Marshal(NewTimestamp(time.Date(2025, 12, 17, 10, 30, 0, 0, time.UTC)))
	if err != nil || string(data) != `"2025-12-17T10:30:00Z"` {
		t.Errorf("Marshal() = %s, %v", data, err)
	}
}
