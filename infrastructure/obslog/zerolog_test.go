package obslog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogger_JSON_IncludesNodeAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, "mainnet-1")

	l.Info().Str("peer", "203.0.113.5:9732").Uint64("conn_id", 7).Msg("connection opened")

	out := buf.String()
	for _, want := range []string{`"node":"mainnet-1"`, `"peer":"203.0.113.5:9732"`, `"conn_id":7`, `"message":"connection opened"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLogger_LevelsAreDistinct(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, "mainnet-1")

	l.Warn().Msg("a warning")
	l.Error().Msg("an error")

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("missing warn level in %q", out)
	}
	if !strings.Contains(out, `"level":"error"`) {
		t.Errorf("missing error level in %q", out)
	}
}
