package notifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pfrederiksen/court-slots/internal/slot"
)

func TestNewTelegramNotifier_Validation(t *testing.T) {
	tests := []struct {
		name      string
		botToken  string
		chatID    string
		wantError bool
	}{
		{
			name:      "valid parameters",
			botToken:  "test-token",
			chatID:    "12345",
			wantError: false,
		},
		{
			name:      "empty bot token",
			botToken:  "",
			chatID:    "12345",
			wantError: true,
		},
		{
			name:      "empty chat ID",
			botToken:  "test-token",
			chatID:    "",
			wantError: true,
		},
		{
			name:      "both empty",
			botToken:  "",
			chatID:    "",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewTelegramNotifier(tt.botToken, tt.chatID)
			if tt.wantError {
				if err == nil {
					t.Error("NewTelegramNotifier() expected error, got nil")
				}
				if n != nil {
					t.Error("NewTelegramNotifier() should return nil notifier on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTelegramNotifier() unexpected error: %v", err)
			}
			if n == nil {
				t.Fatal("NewTelegramNotifier() returned nil notifier")
			}
			if n.httpClient == nil {
				t.Error("httpClient should not be nil")
			}
		})
	}
}

func TestTelegramNotifier_Notify(t *testing.T) {
	var payloads []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		payloads = append(payloads, payload)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n, err := NewTelegramNotifier("test-token", "12345")
	if err != nil {
		t.Fatalf("NewTelegramNotifier() error: %v", err)
	}
	n.apiBaseURL = server.URL + "/bot"

	if err := n.Notify([]*slot.Slot{testSlot()}); err != nil {
		t.Fatalf("Notify() unexpected error: %v", err)
	}

	if len(payloads) != 1 {
		t.Fatalf("expected 1 message, got %d", len(payloads))
	}
	if payloads[0]["chat_id"] != "12345" {
		t.Errorf("chat_id = %v, want 12345", payloads[0]["chat_id"])
	}
	text, _ := payloads[0]["text"].(string)
	if !strings.Contains(text, "Court A") {
		t.Errorf("message text missing court label: %q", text)
	}
}

func TestTelegramNotifier_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	n, err := NewTelegramNotifier("test-token", "12345")
	if err != nil {
		t.Fatalf("NewTelegramNotifier() error: %v", err)
	}
	n.apiBaseURL = server.URL + "/bot"

	err = n.Notify([]*slot.Slot{testSlot()})
	if err == nil {
		t.Fatal("Notify() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error should carry API description, got: %v", err)
	}
}

func TestTelegramNotifier_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	n, err := NewTelegramNotifier("bad-token", "12345")
	if err != nil {
		t.Fatalf("NewTelegramNotifier() error: %v", err)
	}
	n.apiBaseURL = server.URL + "/bot"

	if err := n.Notify([]*slot.Slot{testSlot()}); err == nil {
		t.Fatal("Notify() expected error for non-200 response")
	}
}
