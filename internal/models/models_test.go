package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestMessage_Fields(t *testing.T) {
	typ := reflect.TypeOf(Message{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "Surface", "size:16")
	assertGormTag(t, typ, "Surface", "index:idx_surface_user")
	assertGormTag(t, typ, "UserID", "index:idx_surface_user")
	assertGormTag(t, typ, "Prompt", "type:text")
	assertGormTag(t, typ, "Response", "type:text")
	assertGormTag(t, typ, "Status", "default:started")

	assertFieldType(t, typ, "ID", "uint")
	assertFieldType(t, typ, "PromptTimestamp", "time.Time")
	assertFieldType(t, typ, "ResponseTimestamp", "*time.Time")
}

func TestUser_Fields(t *testing.T) {
	typ := reflect.TypeOf(User{})
	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "Username", "uniqueIndex")
}

func TestSession_Fields(t *testing.T) {
	typ := reflect.TypeOf(Session{})
	assertGormTag(t, typ, "Token", "primaryKey")
	assertGormTag(t, typ, "Token", "size:64")
	assertGormTag(t, typ, "UserID", "index")
	assertGormTag(t, typ, "User", "foreignKey:UserID")
	assertFieldType(t, typ, "User", "models.User")
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"no expiry", time.Time{}, false},
		{"future", now.Add(time.Hour), false},
		{"past", now.Add(-time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Session{ExpiresAt: tt.expires}
			if got := s.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessage_Answered(t *testing.T) {
	if (Message{ID: 1}).Answered() {
		t.Error("empty response should not count as answered")
	}
	if !(Message{ID: 1, Response: "hi"}).Answered() {
		t.Error("non-empty response should count as answered")
	}
	if (Message{ID: 1, Response: " \n\t"}).Answered() {
		t.Error("whitespace-only response should not count as answered")
	}
}

func TestMessage_UnmarshalDialects(t *testing.T) {
	tests := []struct {
		name         string
		payload      string
		wantPrompt   string
		wantResponse string
	}{
		{
			name:         "diary dialect",
			payload:      `{"id":1,"prompt":"hi","response":"hello"}`,
			wantPrompt:   "hi",
			wantResponse: "hello",
		},
		{
			name:         "chat dialect",
			payload:      `{"id":2,"user_input":"hey","ai_response":"there"}`,
			wantPrompt:   "hey",
			wantResponse: "there",
		},
		{
			name:       "null response",
			payload:    `{"id":3,"prompt":"hi","response":null}`,
			wantPrompt: "hi",
		},
		{
			name:       "empty response",
			payload:    `{"id":4,"prompt":"hi","response":""}`,
			wantPrompt: "hi",
		},
		{
			name:       "whitespace response",
			payload:    `{"id":7,"prompt":"hi","response":"   "}`,
			wantPrompt: "hi",
		},
		{
			name:       "missing response",
			payload:    `{"id":5,"prompt":"hi"}`,
			wantPrompt: "hi",
		},
		{
			name:         "empty canonical falls back to alias",
			payload:      `{"id":6,"prompt":"","user_input":"x","response":"","ai_response":"y"}`,
			wantPrompt:   "x",
			wantResponse: "y",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(tt.payload), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if m.Prompt != tt.wantPrompt {
				t.Errorf("Prompt = %q, want %q", m.Prompt, tt.wantPrompt)
			}
			if m.Response != tt.wantResponse {
				t.Errorf("Response = %q, want %q", m.Response, tt.wantResponse)
			}
			if m.Answered() != (tt.wantResponse != "") {
				t.Errorf("Answered() = %v", m.Answered())
			}
		})
	}
}

func TestMessage_UnmarshalMissingID(t *testing.T) {
	for _, payload := range []string{`{"prompt":"hi"}`, `{"id":0,"prompt":"hi"}`} {
		var m Message
		err := json.Unmarshal([]byte(payload), &m)
		if err == nil {
			t.Fatalf("expected error for %s", payload)
		}
		if !strings.Contains(err.Error(), "missing id") {
			t.Errorf("error = %q, want to contain 'missing id'", err)
		}
	}
}

func TestMessage_UnmarshalTimestamps(t *testing.T) {
	payload := `{"id":7,"prompt":"p","response":"r","prompt_timestamp":"2024-10-01T10:00:01.123456Z","response_timestamp":"2024-10-01T10:00:02Z"}`
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.PromptTimestamp.IsZero() {
		t.Error("PromptTimestamp should be set")
	}
	if m.ResponseTimestamp == nil || m.ResponseTimestamp.Second() != 2 {
		t.Errorf("ResponseTimestamp = %v", m.ResponseTimestamp)
	}
}

func TestMessage_MarshalAbsentResponseIsNull(t *testing.T) {
	data, err := json.Marshal(Message{ID: 9, UserID: 3, Prompt: "hello"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"id":9`, `"user":3`, `"prompt":"hello"`, `"response":null`, `"response_timestamp":null`} {
		if !strings.Contains(got, want) {
			t.Errorf("json %s missing %s", got, want)
		}
	}
}

func TestMessage_CloneCopiesTimestamp(t *testing.T) {
	ts := time.Date(2024, 10, 1, 10, 0, 0, 0, time.UTC)
	orig := Message{ID: 1, Response: "r", ResponseTimestamp: &ts}
	cp := orig.Clone()
	*cp.ResponseTimestamp = ts.Add(time.Hour)
	if !orig.ResponseTimestamp.Equal(ts) {
		t.Error("Clone shares ResponseTimestamp pointer with original")
	}
}
