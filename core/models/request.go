package models

// ScaffoldRequest submits a new project built from a recipe
type ScaffoldRequest struct {
	Name     string    `json:"name" yaml:"name"`
	RecipeID string    `json:"recipeId" yaml:"recipe"`
	Context  string    `json:"context" yaml:"context"`
	Mode     AgentMode `json:"mode" yaml:"mode"`
}

// UplinkRequest attaches the agent to an existing repository
type UplinkRequest struct {
	RepoURL string    `json:"repoUrl" yaml:"repo_url"`
	Context string    `json:"context" yaml:"context"`
	Mode    AgentMode `json:"mode" yaml:"mode"`
}

// RemoteRequest attaches the agent to a user-supplied host. Host may be an
// EC2 instance id, resolved before connecting.
type RemoteRequest struct {
	RepoURL    string    `json:"repoUrl" yaml:"repo_url"`
	Host       string    `json:"host" yaml:"host"`
	Port       int       `json:"port" yaml:"port"`
	Username   string    `json:"username" yaml:"username"`
	PrivateKey string    `json:"privateKey" yaml:"private_key"`
	Context    string    `json:"context" yaml:"context"`
	Mode       AgentMode `json:"mode" yaml:"mode"`
}
