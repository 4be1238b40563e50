package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/basaltrun/slurmpipe/pkg/bucket"
	"gopkg.in/yaml.v3"
)

var timePattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)

// PipelineMarshall is the mutable, yaml-tagged document read straight off
// the config file. Call TrySeal to validate it into an immutable
// *Pipeline; TrySeal panics on the first missing or malformed field,
// recovered at the Load boundary below.
type PipelineMarshall struct {
	Jobs       []*JobMarshall     `yaml:"jobs"`
	Properties *PropertiesMarshall `yaml:"properties"`
}

func (m *PipelineMarshall) TrySeal() (sealed *Pipeline, err error) {
	defer func() {
		if r := recover(); r != nil {
			sealed = nil
			err = fmt.Errorf("config: %v", r)
		}
	}()
	return m.trySeal("pipeline"), nil
}

func (m *PipelineMarshall) trySeal(path string) *Pipeline {
	jobs := make([]*Job, len(m.Jobs))
	seen := map[string]bool{}
	for i, jm := range m.Jobs {
		j := jm.trySeal(fmt.Sprintf("%s.jobs[%d]", path, i))
		if seen[j.name] {
			panic(fmt.Sprintf("%s.jobs[%d]: duplicate job name %q", path, i, j.name))
		}
		seen[j.name] = true
		jobs[i] = j
	}

	return &Pipeline{
		jobs:       jobs,
		properties: nonnil(m.Properties, path+".properties").trySeal(path + ".properties"),
	}
}

type JobMarshall struct {
	Name         string                  `yaml:"name"`
	Script       string                  `yaml:"script"`
	ParamFiles   []string                `yaml:"param_files"`
	LogDir       string                  `yaml:"log_dir"`
	Resources    *ResourcesMarshall      `yaml:"resources"`
	SpecialCases []*SpecialCaseMarshall  `yaml:"special_cases,omitempty"`
}

func (jm *JobMarshall) trySeal(path string) *Job {
	name := required(jm.Name, path+".name")
	script := required(jm.Script, path+".script")
	if _, err := os.Stat(script); err != nil {
		panic(fmt.Sprintf("%s.script: %s does not exist", path, script))
	}
	for i, pf := range jm.ParamFiles {
		if _, err := os.Stat(pf); err != nil {
			panic(fmt.Sprintf("%s.param_files[%d]: %s does not exist", path, i, pf))
		}
	}

	specialCases := make([]*SpecialCase, len(jm.SpecialCases))
	for i, scm := range jm.SpecialCases {
		specialCases[i] = scm.trySeal(fmt.Sprintf("%s.special_cases[%d]", path, i))
	}

	return &Job{
		name:         name,
		script:       script,
		paramFiles:   jm.ParamFiles,
		logDir:       required(jm.LogDir, path+".log_dir"),
		resources:    nonnil(jm.Resources, path+".resources").trySeal(path + ".resources"),
		specialCases: specialCases,
	}
}

type ResourcesMarshall struct {
	CPUs   int    `yaml:"cpus"`
	Time   string `yaml:"time"`
	Memory string `yaml:"memory,omitempty"`
}

func (rm *ResourcesMarshall) trySeal(path string) Resources {
	if rm.CPUs < 1 {
		panic(fmt.Sprintf("%s.cpus: must be >= 1, got %d", path, rm.CPUs))
	}
	t := required(rm.Time, path+".time")
	if !timePattern.MatchString(t) {
		panic(fmt.Sprintf("%s.time: %q does not match HH:MM:SS", path, t))
	}
	d, err := parseHHMMSS(t)
	if err != nil {
		panic(fmt.Sprintf("%s.time: %v", path, err))
	}
	return Resources{CPUs: rm.CPUs, Time: d, Memory: rm.Memory}
}

func parseHHMMSS(s string) (time.Duration, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%02d:%02d:%02d", &h, &m, &sec); err != nil {
		return 0, err
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

type SpecialCaseMarshall struct {
	Name      string                  `yaml:"name"`
	Files     []*FileConstraintMarshall `yaml:"files"`
	Resources *ResourcesMarshall      `yaml:"resources"`
}

func (scm *SpecialCaseMarshall) trySeal(path string) *SpecialCase {
	if len(scm.Files) == 0 {
		panic(path + ".files: at least one file constraint is required")
	}
	files := make([]bucket.FileConstraint, len(scm.Files))
	for i, fm := range scm.Files {
		files[i] = fm.trySeal(fmt.Sprintf("%s.files[%d]", path, i))
	}
	return &SpecialCase{
		name:      required(scm.Name, path+".name"),
		files:     files,
		resources: nonnil(scm.Resources, path+".resources").trySeal(path + ".resources"),
	}
}

type FileConstraintMarshall struct {
	Path    string `yaml:"path"`
	SizeMax int64  `yaml:"size_max,omitempty"`
	SizeMin int64  `yaml:"size_min,omitempty"`
}

func (fm *FileConstraintMarshall) trySeal(path string) bucket.FileConstraint {
	return bucket.FileConstraint{
		Path:    required(fm.Path, path+".path"),
		SizeMax: fm.SizeMax,
		SizeMin: fm.SizeMin,
	}
}

type PropertiesMarshall struct {
	CondaEnv         string             `yaml:"conda_env"`
	Account          string             `yaml:"account,omitempty"`
	LogLevel         string             `yaml:"log_level,omitempty"`
	MaxRetries       *int               `yaml:"max_retries"`
	PollInterval     int                `yaml:"poll_interval"`
	ExpBackoffFactor float64            `yaml:"exp_backoff_factor"`
	FailurePolicy    string             `yaml:"failure_policy,omitempty"`
	Slack            *SlackWebhookMarshall `yaml:"slack,omitempty"`
}

func (pm *PropertiesMarshall) trySeal(path string) *Properties {
	if pm.MaxRetries == nil || *pm.MaxRetries < 0 {
		panic(fmt.Sprintf("%s.max_retries: must be >= 0", path))
	}
	if pm.PollInterval < 1 {
		panic(fmt.Sprintf("%s.poll_interval: must be >= 1s, got %d", path, pm.PollInterval))
	}
	if pm.ExpBackoffFactor < 1 {
		panic(fmt.Sprintf("%s.exp_backoff_factor: must be >= 1, got %g", path, pm.ExpBackoffFactor))
	}

	policy := FailurePolicyContinue
	switch pm.FailurePolicy {
	case "", string(FailurePolicyContinue):
		policy = FailurePolicyContinue
	case string(FailurePolicyBlock):
		policy = FailurePolicyBlock
	default:
		panic(fmt.Sprintf("%s.failure_policy: unknown value %q", path, pm.FailurePolicy))
	}

	logLevel := pm.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}

	var slack *SlackWebhook
	if pm.Slack != nil {
		slack = pm.Slack.trySeal(path + ".slack")
	}

	return &Properties{
		condaEnv:         required(pm.CondaEnv, path+".conda_env"),
		account:          pm.Account,
		logLevel:         logLevel,
		maxRetries:       *pm.MaxRetries,
		pollInterval:     time.Duration(pm.PollInterval) * time.Second,
		expBackoffFactor: pm.ExpBackoffFactor,
		failurePolicy:    policy,
		slack:            slack,
	}
}

// SlackWebhookMarshall is the raw {channel, token} pair, decoded by plain
// yaml tags. trySeal adds a dereferenceable *url.URL, borrowing the idea of
// the teacher's configs/hook.WebHook; the URL is always the fixed
// chat.postMessage endpoint, not a field of the document.
type SlackWebhookMarshall struct {
	Channel string `yaml:"channel"`
	Token   string `yaml:"token"`
}

func (sm *SlackWebhookMarshall) trySeal(path string) *SlackWebhook {
	channel := required(sm.Channel, path+".channel")
	token := required(sm.Token, path+".token")
	u, err := url.Parse("https://slack.com/api/chat.postMessage")
	if err != nil {
		panic(fmt.Sprintf("%s: %v", path, err))
	}
	return &SlackWebhook{Channel: channel, Token: token, URL: u}
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}

// Load reads and validates a pipeline config document, following the
// teacher's LoadBackendConfig(filepath) → Unmarshal(bytes) shape.
func Load(filepath string) (*Pipeline, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

// Unmarshal decodes with strict field checking: any top-level, job, or
// properties key not named by a yaml tag above is a fatal error rather
// than a silently-ignored typo, per spec.md §4.1.
func Unmarshal(content []byte) (*Pipeline, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var m *PipelineMarshall
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return m.TrySeal()
}
