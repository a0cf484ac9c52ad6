package spec

import (
	"fmt"
	"strings"

	"command-center/core/models"

	"gopkg.in/yaml.v3"
)

// JobSpec represents the YAML job specification
type JobSpec struct {
	Job JobSpecJob `yaml:"job"`
}

// JobSpecJob represents the job section of the spec
type JobSpecJob struct {
	Variant string        `yaml:"variant"` // scaffold | uplink | remote
	Name    string        `yaml:"name"`
	Recipe  string        `yaml:"recipe"`
	RepoURL string        `yaml:"repo_url"`
	Context string        `yaml:"context"`
	Mode    string        `yaml:"mode"` // auto | interactive
	Remote  JobSpecRemote `yaml:"remote"`
}

// JobSpecRemote represents the host section of a remote job
type JobSpecRemote struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	PrivateKey string `yaml:"private_key"`
}

// Submission is a parsed job spec; exactly one request is set, matching Variant
type Submission struct {
	Variant  models.Variant
	Scaffold *models.ScaffoldRequest
	Uplink   *models.UplinkRequest
	Remote   *models.RemoteRequest
}

// ParseJobSpec parses a YAML job specification into a submission
func ParseJobSpec(specYAML string) (*Submission, error) {
	var spec JobSpec
	dec := yaml.NewDecoder(strings.NewReader(specYAML))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	mode := models.AgentMode(strings.ToLower(spec.Job.Mode))
	if mode == "" {
		mode = models.AgentModeAuto
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown mode %q", spec.Job.Mode)
	}

	sub := &Submission{Variant: models.Variant(strings.ToLower(spec.Job.Variant))}
	switch sub.Variant {
	case models.VariantScaffold:
		if spec.Job.Name == "" || spec.Job.Recipe == "" {
			return nil, fmt.Errorf("scaffold job requires name and recipe")
		}
		sub.Scaffold = &models.ScaffoldRequest{
			Name:     spec.Job.Name,
			RecipeID: spec.Job.Recipe,
			Context:  spec.Job.Context,
			Mode:     mode,
		}
	case models.VariantUplink:
		if spec.Job.RepoURL == "" {
			return nil, fmt.Errorf("uplink job requires repo_url")
		}
		sub.Uplink = &models.UplinkRequest{
			RepoURL: spec.Job.RepoURL,
			Context: spec.Job.Context,
			Mode:    mode,
		}
	case models.VariantRemote:
		r := spec.Job.Remote
		if r.Host == "" || r.Username == "" || r.PrivateKey == "" {
			return nil, fmt.Errorf("remote job requires remote.host, remote.username and remote.private_key")
		}
		port := r.Port
		if port == 0 {
			port = 22
		}
		sub.Remote = &models.RemoteRequest{
			RepoURL:    spec.Job.RepoURL,
			Host:       r.Host,
			Port:       port,
			Username:   r.Username,
			PrivateKey: r.PrivateKey,
			Context:    spec.Job.Context,
			Mode:       mode,
		}
	default:
		return nil, fmt.Errorf("unknown job variant %q", spec.Job.Variant)
	}

	return sub, nil
}
