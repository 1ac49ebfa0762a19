package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Options names the tables the dashboards query.
type Options struct {
	PacketTable  string
	StatusTable  string
	JournalTable string
}

// DefaultOptions matches the default sink and journal tables.
func DefaultOptions() Options {
	return Options{PacketTable: "vr_telemetry", StatusTable: "vr_status", JournalTable: "headset_events"}
}

// Render parses the embedded dashboard templates and writes rendered
// dashboards to outDir. Datasource uids come from GREPTIMEDB_DATASOURCE_UID
// and POSTGRES_DATASOURCE_UID.
func Render(outDir string, opts Options) ([]string, error) {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	t, err := template.New("dashboards").Funcs(funcMap).ParseFS(templates, "templates/*.json.tmpl")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, tpl := range t.Templates() {
		name := tpl.Name()
		if !strings.HasSuffix(name, ".tmpl") {
			continue
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return written, err
		}
		if err := tpl.Execute(f, opts); err != nil {
			f.Close()
			return written, fmt.Errorf("render %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return written, err
		}
		written = append(written, outPath)
	}
	return written, nil
}
