package logx

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestInitWriterLevelAndService(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, Config{Service: "test-svc"})
	t.Cleanup(func() { Init() })

	log.Debug().Msg("hidden")
	log.Info().Str("provider_id", "mv-1").Msg("visible")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "test-svc" || entry["provider_id"] != "mv-1" || entry["message"] != "visible" {
		t.Fatalf("unexpected log entry: %#v", entry)
	}
}

func TestInitWriterDebug(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, Config{Debug: true})
	t.Cleanup(func() { Init() })

	log.Debug().Msg("shown")
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Fatalf("expected debug line, got %q", buf.String())
	}
}
