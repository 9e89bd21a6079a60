package site

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// ProjectType is a coarse classification used by collaborators to pick
// tooling for a site.
type ProjectType string

const (
	ProjectLaravel  ProjectType = "laravel"
	ProjectLivewire ProjectType = "livewire"
	ProjectReact    ProjectType = "react"
	ProjectVue      ProjectType = "vue"
	ProjectOtherJS  ProjectType = "other-js"
	ProjectOther    ProjectType = "other"
)

type packageManifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

type composerManifest struct {
	Require map[string]string `json:"require"`
}

// DetectProjectType inspects package.json, artisan and composer.json.
// A package.json wins over PHP markers. Unreadable manifests yield
// ProjectOther.
func DetectProjectType(path string) ProjectType {
	var pkg packageManifest
	found, err := readManifest(filepath.Join(path, "package.json"), &pkg)
	if err != nil {
		return ProjectOther
	}
	if found {
		switch {
		case has(pkg.Dependencies, "react") || has(pkg.DevDependencies, "react"):
			return ProjectReact
		case has(pkg.Dependencies, "vue") || has(pkg.DevDependencies, "vue"):
			return ProjectVue
		default:
			return ProjectOtherJS
		}
	}

	if _, err := os.Stat(filepath.Join(path, "artisan")); err != nil {
		return ProjectOther
	}
	var composer composerManifest
	if found, err := readManifest(filepath.Join(path, "composer.json"), &composer); err == nil && found {
		if has(composer.Require, "livewire/livewire") {
			return ProjectLivewire
		}
	}
	return ProjectLaravel
}

// readManifest decodes a JSON file that may carry comments or trailing
// commas. found is false when the file does not exist.
func readManifest(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
		return true, err
	}
	return true, nil
}

func has(m map[string]string, key string) bool {
	_, ok := m[key]
	return ok
}
