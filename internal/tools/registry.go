package tools

import (
	"fmt"
	"log"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Registry is the constructed-once set of tools available to sessions. It
// is built at startup and passed by dependency injection; it is read-only
// afterwards.
type Registry struct {
	builtins []Tool
	external map[string]Tool
	order    []string
}

func NewRegistry(builtins ...Tool) *Registry {
	return &Registry{builtins: builtins, external: map[string]Tool{}}
}

// AddExternal registers an external tool under its id.
func (r *Registry) AddExternal(id string, t Tool) {
	if _, exists := r.external[id]; !exists {
		r.order = append(r.order, id)
	}
	r.external[id] = t
}

// Describe enumerates the external entries as id -> title, the shape the
// config wire message announces to a freshly connected client.
func (r *Registry) Describe() map[string]string {
	out := make(map[string]string, len(r.external))
	for id, t := range r.external {
		out[id] = t.Title()
	}
	return out
}

// Select returns the tools for one run: every built-in plus the external
// entries the caller picked by id. Unknown ids are skipped.
func (r *Registry) Select(ids []string) []Tool {
	out := make([]Tool, 0, len(r.builtins)+len(ids))
	out = append(out, r.builtins...)
	seen := map[string]struct{}{}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if t, ok := r.external[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// ExternalIDs returns the external tool ids in registration order.
func (r *Registry) ExternalIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	sort.Strings(out)
	return out
}

type externalSpec struct {
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
}

type externalFile struct {
	MCPServers map[string]externalSpec `yaml:"mcpServers"`
}

// LoadExternal reads the external tool server declarations from a YAML
// config file and registers an HTTP-backed tool per url entry.
// Command-based entries have no transport here and are skipped with a log
// line. A missing file is not an error: the registry simply has no
// external entries.
func (r *Registry) LoadExternal(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read tools config: %w", err)
	}

	var file externalFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse tools config: %w", err)
	}

	ids := make([]string, 0, len(file.MCPServers))
	for id := range file.MCPServers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		spec := file.MCPServers[id]
		title := spec.Description
		if title == "" {
			title = id
		}
		switch {
		case spec.URL != "":
			r.AddExternal(id, NewHTTPTool(id, title, spec.URL))
		case spec.Command != "":
			log.Printf("tools: skipping %q: command transport is not supported", id)
		default:
			log.Printf("tools: skipping %q: no url or command", id)
		}
	}
	return nil
}
