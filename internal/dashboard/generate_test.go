package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "")
	t.Setenv("POSTGRES_DATASOURCE_UID", "")
	if _, err := Render(t.TempDir(), DefaultOptions()); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")
	t.Setenv("POSTGRES_DATASOURCE_UID", "uid2")

	dir := t.TempDir()
	opts := DefaultOptions()
	opts.PacketTable = "lab_telemetry"
	written, err := Render(dir, opts)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("expected 2 dashboards, got %v", written)
	}

	b, err := os.ReadFile(filepath.Join(dir, "headset-telemetry.json"))
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	if !strings.Contains(string(b), "uid1") || !strings.Contains(string(b), "FROM lab_telemetry") {
		t.Fatalf("greptime uid or table not rendered")
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("telemetry dashboard is not valid JSON: %v", err)
	}

	b, err = os.ReadFile(filepath.Join(dir, "headset-journal.json"))
	if err != nil {
		t.Fatalf("read journal dashboard: %v", err)
	}
	if !strings.Contains(string(b), "uid2") || !strings.Contains(string(b), "headset_events") {
		t.Fatalf("postgres uid or table not rendered")
	}
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("journal dashboard is not valid JSON: %v", err)
	}
}
