// Package module implements module discovery and the per-job runtime
// context. A module is a subdirectory under the configured modules root
// declaring a manifest of jobs it owns; its domain logic (market-data
// ingestors, social collectors, AI callouts, and so on) is out of scope
// here and is reached only through the Handler registry a module registers
// at process init.
package module

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes a module's declared jobs and optional runtime entry
// point.
type Manifest struct {
	Name    string         `json:"name"`
	Jobs    []JobManifest  `json:"jobs"`
	Runtime *RuntimeConfig `json:"runtime,omitempty"`
}

// JobManifest declares one job a module owns.
type JobManifest struct {
	Queue       string `json:"queue"`
	Name        string `json:"name"`
	Schedule    string `json:"schedule,omitempty"`
	TriggeredBy string `json:"triggeredBy,omitempty"`
}

// RuntimeConfig names the registry entry this module's handlers are
// registered under. Manifests with no RuntimeConfig are kept in the
// registry but have no handlers.
type RuntimeConfig struct {
	Entry string `json:"entry"`
}

const manifestFileName = "module.json"

// manifestFileNameYAML is an alternative manifest format for modules that
// prefer YAML to JSON.
const manifestFileNameYAML = "module.yaml"

// Discover enumerates subdirectories of root, each expected to contain a
// module.json or module.yaml manifest (module.json takes precedence if both
// are present). A subdirectory with no manifest is skipped. A subdirectory
// whose manifest fails to parse is recorded in failed rather than aborting
// discovery.
func Discover(root string) (manifests []Manifest, failed map[string]error, err error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("read modules dir %s: %w", root, err)
	}

	failed = make(map[string]error)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())

		m, found, parseErr := readManifest(dir)
		if parseErr != nil {
			failed[entry.Name()] = parseErr
			continue
		}
		if !found {
			continue
		}
		if m.Name == "" {
			m.Name = entry.Name()
		}
		manifests = append(manifests, m)
	}
	return manifests, failed, nil
}

func readManifest(dir string) (m Manifest, found bool, err error) {
	jsonPath := filepath.Join(dir, manifestFileName)
	data, readErr := os.ReadFile(jsonPath)
	if readErr == nil {
		if jsonErr := json.Unmarshal(data, &m); jsonErr != nil {
			return Manifest{}, true, fmt.Errorf("parse manifest: %w", jsonErr)
		}
		return m, true, nil
	}
	if !os.IsNotExist(readErr) {
		return Manifest{}, true, fmt.Errorf("read manifest: %w", readErr)
	}

	yamlPath := filepath.Join(dir, manifestFileNameYAML)
	data, readErr = os.ReadFile(yamlPath)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return Manifest{}, false, nil
		}
		return Manifest{}, true, fmt.Errorf("read manifest: %w", readErr)
	}
	if yamlErr := yaml.Unmarshal(data, &m); yamlErr != nil {
		return Manifest{}, true, fmt.Errorf("parse manifest: %w", yamlErr)
	}
	return m, true, nil
}
