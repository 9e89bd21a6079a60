package request

// RunCommand starts a package-manager script in a site.
type RunCommand struct {
	Command string `json:"command" validate:"required,command,max=128"`
}
