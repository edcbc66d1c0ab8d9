package protocol_test

import (
	"encoding/json"
	"testing"

	"robotodyssey.web/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	validate := func(raw string) {
		t.Helper()
		if _, err := protocol.Validate([]byte(raw)); err != nil {
			t.Fatalf("validate %s: %v", raw, err)
		}
	}

	validate(`{"type":"HELLO","protocol_version":"1.0","hash":"#AQID"}`)
	validate(`{"type":"HASH_CHANGE","hash":""}`)
	validate(`{"type":"UPLOAD","data":"AQID"}`)
	validate(`{"type":"SAVE"}`)
}

func TestSchemas_ServerMessagesConform(t *testing.T) {
	msgs := []any{
		protocol.WelcomeMsg{Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: "0190a3a4-0000-7000-8000-000000000000", DebounceMs: 500},
		protocol.SetHashMsg{Type: protocol.TypeSetHash, Hash: "AQID"},
		protocol.SetHashMsg{Type: protocol.TypeSetHash, Hash: ""},
		protocol.DownloadMsg{
			Type:     protocol.TypeDownload,
			Filename: "robotodyssey-chip-HELLO-2024-03-01T12:30:45.123Z.csv",
			Kind:     "chip",
			Label:    `Chip "HELLO"`,
			Size:     1333,
			Data:     "AAAA",
		},
		protocol.NewStatus("loaded"),
		protocol.NewError(protocol.ErrBlocked, "busy"),
	}
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if _, err := protocol.Validate(b); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}
}

func TestSchemas_RejectMalformed(t *testing.T) {
	bad := []string{
		`{"type":"HELLO","protocol_version":"1.0"}`,
		`{"type":"UPLOAD","data":"not base64!"}`,
		`{"type":"SET_HASH","hash":"#AQID"}`,
		`{"type":"ERROR","code":"E_NOPE","message":"x"}`,
		`{"type":"NOPE"}`,
		`not json`,
	}
	for _, raw := range bad {
		if _, err := protocol.Validate([]byte(raw)); err == nil {
			t.Fatalf("expected %s to be rejected", raw)
		}
	}
}
