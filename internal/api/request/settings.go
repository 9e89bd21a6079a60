package request

type SetSetting struct {
	Value string `json:"value" validate:"required,max=4096"`
}

type SetPHPVersion struct {
	Version string `json:"version" validate:"required,phpversion"`
}

// CreateService registers a manageable service. Services with a command
// run as child processes; the rest map onto a platform service unit.
type CreateService struct {
	Category string   `json:"category" validate:"required,slug"`
	Name     string   `json:"name" validate:"required,slug"`
	Unit     string   `json:"unit" validate:"omitempty,max=255"`
	Command  []string `json:"command" validate:"omitempty,dive,required"`
	Dir      string   `json:"dir" validate:"omitempty,max=4096"`
}
