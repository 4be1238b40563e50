// Package config is the schema-validated pipeline definition: an
// immutable, getter-only tree obtained by sealing a mutable
// yaml-tagged Marshall document, following the teacher's
// pkg/configs/backend Marshall/trySeal pattern.
package config

import (
	"net/url"
	"time"

	"github.com/basaltrun/slurmpipe/pkg/bucket"
)

// Pipeline is the sealed, validated form of a pipeline definition: an
// ordered sequence of jobs plus process-wide properties.
type Pipeline struct {
	jobs       []*Job
	properties *Properties
}

func (p *Pipeline) Jobs() []*Job          { return p.jobs }
func (p *Pipeline) Properties() *Properties { return p.properties }

// Job is one JobSpec: a script run once per parameter record, with an
// optional set of special-case resource overrides.
type Job struct {
	name         string
	script       string
	paramFiles   []string
	logDir       string
	resources    Resources
	specialCases []*SpecialCase
}

func (j *Job) Name() string             { return j.name }
func (j *Job) Script() string           { return j.script }
func (j *Job) ParamFiles() []string     { return j.paramFiles }
func (j *Job) LogDir() string           { return j.logDir }
func (j *Job) Resources() Resources     { return j.resources }
func (j *Job) SpecialCases() []*SpecialCase { return j.specialCases }

// Resources is a resource request: cpu count, wall time, optional memory.
type Resources struct {
	CPUs   int
	Time   time.Duration
	Memory string
}

// SpecialCase is one alternative resource allocation, gated on a file
// predicate evaluated against a record's data directory.
type SpecialCase struct {
	name      string
	files     []bucket.FileConstraint
	resources Resources
}

func (s *SpecialCase) Name() string                    { return s.name }
func (s *SpecialCase) Files() []bucket.FileConstraint   { return s.files }
func (s *SpecialCase) Resources() Resources             { return s.resources }

// FailurePolicy controls whether a job with FAILED packages blocks
// pipeline advancement, resolving spec.md §9's open question.
type FailurePolicy string

const (
	FailurePolicyContinue FailurePolicy = "continue"
	FailurePolicyBlock    FailurePolicy = "block"
)

// Properties are the process-wide settings shared by every job.
type Properties struct {
	condaEnv         string
	account          string
	logLevel         string
	maxRetries       int
	pollInterval     time.Duration
	expBackoffFactor float64
	failurePolicy    FailurePolicy
	slack            *SlackWebhook
}

func (p *Properties) CondaEnv() string             { return p.condaEnv }
func (p *Properties) Account() string              { return p.account }
func (p *Properties) LogLevel() string             { return p.logLevel }
func (p *Properties) MaxRetries() int              { return p.maxRetries }
func (p *Properties) PollInterval() time.Duration  { return p.pollInterval }
func (p *Properties) ExpBackoffFactor() float64    { return p.expBackoffFactor }
func (p *Properties) FailurePolicy() FailurePolicy { return p.failurePolicy }
func (p *Properties) Slack() *SlackWebhook         { return p.slack }

// SlackWebhook is the notifier's Slack destination, the sealed form built
// by SlackWebhookMarshall.trySeal from the configured channel/token pair
// (no custom UnmarshalYAML is involved).
type SlackWebhook struct {
	Channel string
	Token   string
	URL     *url.URL // nil when no webhook is configured
}

// WithOverrides applies the CLI's -a/-l/-e flag overrides (§6) after
// sealing, mirroring the original CLI's account/log_dir/env flags.
func (p *Pipeline) WithOverrides(account, logDir, env string) *Pipeline {
	clone := *p
	props := *p.properties
	if account != "" {
		props.account = account
	}
	if env != "" {
		props.condaEnv = env
	}
	clone.properties = &props

	if logDir != "" {
		jobs := make([]*Job, len(p.jobs))
		for i, j := range p.jobs {
			cj := *j
			cj.logDir = logDir
			jobs[i] = &cj
		}
		clone.jobs = jobs
	}
	return &clone
}
