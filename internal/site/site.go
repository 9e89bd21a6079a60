package site

// Site is one directory under the sites root served by its own PHP process.
type Site struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
	Path  string `json:"path"`
	// DocumentRoot is <path>/public when it holds an index.php, else Path.
	DocumentRoot string `json:"document_root"`
	Port         int    `json:"port,omitempty"`
	PHPVersion   string `json:"php_version"`
	// Running is a read-only view of the backend supervisor's tracking state.
	Running bool `json:"running"`
}

// Names returns the site names in order.
func Names(sites []Site) []string {
	names := make([]string, len(sites))
	for i, s := range sites {
		names[i] = s.Name
	}
	return names
}
