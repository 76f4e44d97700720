package entity

// Policy is a pair of allow and deny name patterns over tools.
// An empty Allow list admits every tool.
type Policy struct {
	Allow []string `yaml:"allow" json:"allow,omitempty"`
	Deny  []string `yaml:"deny" json:"deny,omitempty"`
}

// Context restricts the exposed tools for the kind of client driving the session.
type Context struct {
	Name         string `yaml:"name" json:"name"`
	Policy       `yaml:",inline" json:",inline"`
	Instructions string `yaml:"instructions" json:"instructions,omitempty"`
}

// Mode restricts the exposed tools for the kind of work being done. Modes compose with a Context.
type Mode struct {
	Name   string `yaml:"name" json:"name"`
	Policy `yaml:",inline" json:",inline"`
}

// ExposureConfig holds every policy definition that feeds tool resolution.
type ExposureConfig struct {
	Include       []string           `yaml:"include"`
	Exclude       []string           `yaml:"exclude"`
	ActiveContext string             `yaml:"activeContext"`
	ActiveModes   []string           `yaml:"activeModes"`
	Contexts      map[string]Context `yaml:"contexts"`
	Modes         map[string]Mode    `yaml:"modes"`
	OverridesFile string             `yaml:"overridesFile"`
}

// ToolInfo is the capability view of a tool used when resolving exposure.
type ToolInfo struct {
	Name                  string
	MutatesState          bool
	RequiresActiveProject bool
}

// ExposureState is the session state that feeds tool resolution.
type ExposureState struct {
	Context       string
	Modes         []string
	ProjectActive bool
	ReadOnly      bool
}
