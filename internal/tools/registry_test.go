package tools

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestRegistrySelect(t *testing.T) {
	math := NewMathCalculations()
	r := NewRegistry(math)
	r.AddExternal("weather", NewHTTPTool("weather", "Weather", "http://localhost:1"))
	r.AddExternal("news", NewHTTPTool("news", "News", "http://localhost:2"))

	selected := r.Select([]string{"weather", "weather", "unknown"})
	if len(selected) != 2 {
		t.Fatalf("expected builtin + weather, got %d tools", len(selected))
	}
	if selected[0] != Tool(math) {
		t.Fatalf("builtins must always be included")
	}
	if selected[1].Name() != "weather" {
		t.Fatalf("selected external = %q", selected[1].Name())
	}
}

func TestRegistryDescribeExternalOnly(t *testing.T) {
	r := NewRegistry(NewMathCalculations())
	r.AddExternal("weather", NewHTTPTool("weather", "Weather", "http://localhost:1"))

	desc := r.Describe()
	if !reflect.DeepEqual(desc, map[string]string{"weather": "Weather"}) {
		t.Fatalf("describe = %v", desc)
	}
}

func TestRegistryLoadExternal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	config := `
mcpServers:
  weather:
    description: Weather forecasts
    url: http://localhost:8801/tools
  local:
    command: ./run-tool
    args: ["--port", "9"]
  empty: {}
`
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	r := NewRegistry()
	if err := r.LoadExternal(path); err != nil {
		t.Fatalf("load external: %v", err)
	}
	ids := r.ExternalIDs()
	if len(ids) != 1 || ids[0] != "weather" {
		t.Fatalf("expected only the url-backed tool, got %v", ids)
	}
	if r.Describe()["weather"] != "Weather forecasts" {
		t.Fatalf("description not used as title: %v", r.Describe())
	}
}

func TestRegistryLoadExternalMissingFile(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadExternal(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing config should not be an error: %v", err)
	}
	if len(r.ExternalIDs()) != 0 {
		t.Fatalf("expected no external tools")
	}
}
