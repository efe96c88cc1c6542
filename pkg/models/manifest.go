package models

// Manifest is the generator-produced descriptor of an auto-generated
// client library. It is inert data: regenerated wholesale, never
// patched in place.
type Manifest struct {
	ChosenVersion       string            `json:"chosen_version" validate:"required"`
	TotalAPIVersionList []string          `json:"total_api_version_list" validate:"required,min=1,dive,required"`
	Client              ManifestClient    `json:"client"`
	GlobalParameters    GlobalParameters  `json:"global_parameters"`
	Config              map[string]any    `json:"config,omitempty"`
	OperationGroups     map[string]string `json:"operation_groups" validate:"required,min=1"`
}

// ManifestClient identifies the generated client type and the module
// file it lives in.
type ManifestClient struct {
	Name     string `json:"name" validate:"required"`
	Filename string `json:"filename" validate:"required"`
}

// GlobalParameters lists the constructor arguments every generated
// client requires, typically credential and subscription_id.
type GlobalParameters struct {
	Required []string `json:"required" validate:"required,min=1,dive,required"`
}
