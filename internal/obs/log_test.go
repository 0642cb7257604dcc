package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestLoggerFieldNames(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Logger().Info().Str("k", "v").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "service", "k"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in %v", key, entry)
		}
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	if err := SetLevel("warn"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	Logger().Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %s", buf.String())
	}
	if err := SetLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
