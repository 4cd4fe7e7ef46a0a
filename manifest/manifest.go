// Package manifest loads a declarative YAML description of a service graph
// and turns it into an orchestrator. Post-ready actions are code, not
// configuration; attach them to the returned services before adding.
package manifest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeckit/stagehand"
	"github.com/zeckit/stagehand/probe"
)

// Duration wraps time.Duration with YAML support for Go duration strings
// such as "2s" or "3m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Manifest is the top-level declarative structure. It is read once at
// startup; there is no hot reload.
type Manifest struct {
	// Deadline bounds the whole run; empty means none.
	Deadline Duration     `yaml:"deadline"`
	Services []ServiceDef `yaml:"services"`
}

// ServiceDef declares one service.
type ServiceDef struct {
	Name      string   `yaml:"name"`
	DependsOn []string `yaml:"depends_on"`
	Probe     ProbeDef `yaml:"probe"`
	Retry     RetryDef `yaml:"retry"`
}

// ProbeDef declares how a service's readiness is checked.
type ProbeDef struct {
	Kind    string     `yaml:"kind"`
	Target  string     `yaml:"target"`
	Method  string     `yaml:"method"`
	Timeout Duration   `yaml:"timeout"`
	Expect  *ExpectDef `yaml:"expect"`
}

// ExpectDef declares the expected-success predicate. Conditions combine;
// all must hold.
type ExpectDef struct {
	// Result requires a JSON-RPC response with a non-null result.
	Result bool `yaml:"result"`
	// MinResult requires a numeric JSON-RPC result of at least this value.
	MinResult *int64 `yaml:"min_result"`
	// Field requires the named top-level field to exist; FieldEquals
	// additionally pins its value.
	Field       string `yaml:"field"`
	FieldEquals string `yaml:"field_equals"`
	// NotStatus rejects responses whose "status" field equals this value.
	NotStatus string `yaml:"not_status"`
}

// RetryDef declares the polling bounds for one service.
type RetryDef struct {
	Interval    Duration `yaml:"interval"`
	MaxWait     Duration `yaml:"max_wait"`
	Exponential bool     `yaml:"exponential"`
	MaxInterval Duration `yaml:"max_interval"`
	Jitter      bool     `yaml:"jitter"`
}

// Parse decodes a manifest from YAML.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return &m, nil
}

// Load reads and decodes a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return Parse(data)
}

var kinds = map[string]probe.Kind{
	"rpc":  probe.KindRPC,
	"http": probe.KindHTTP,
	"tcp":  probe.KindTCP,
	"file": probe.KindFile,
}

// BuildServices converts the manifest into service declarations.
func (m *Manifest) BuildServices() ([]stagehand.Service, error) {
	services := make([]stagehand.Service, 0, len(m.Services))
	for _, def := range m.Services {
		kind, ok := kinds[def.Probe.Kind]
		if !ok {
			return nil, fmt.Errorf("manifest: service %q has unknown probe kind %q", def.Name, def.Probe.Kind)
		}
		services = append(services, stagehand.Service{
			Name: def.Name,
			Probe: probe.Spec{
				Kind:    kind,
				Target:  def.Probe.Target,
				Method:  def.Probe.Method,
				Timeout: time.Duration(def.Probe.Timeout),
				Expect:  def.Probe.Expect.predicate(),
			},
			Retry: stagehand.RetryConfig{
				Interval:    time.Duration(def.Retry.Interval),
				MaxWait:     time.Duration(def.Retry.MaxWait),
				Exponential: def.Retry.Exponential,
				MaxInterval: time.Duration(def.Retry.MaxInterval),
				Jitter:      def.Retry.Jitter,
			},
			DependsOn: append([]string(nil), def.DependsOn...),
		})
	}
	return services, nil
}

// Orchestrator builds an orchestrator from the manifest. The result still
// accepts fluent options (sink, clock, probe client).
func (m *Manifest) Orchestrator() (*stagehand.Orchestrator, error) {
	services, err := m.BuildServices()
	if err != nil {
		return nil, err
	}
	orc := stagehand.NewOrchestrator().Add(services...)
	if m.Deadline > 0 {
		orc = orc.WithDeadline(time.Duration(m.Deadline))
	}
	return orc, nil
}

// predicate builds the combined expected-success predicate; nil when no
// condition is declared.
func (e *ExpectDef) predicate() probe.Predicate {
	if e == nil {
		return nil
	}
	var predicates []probe.Predicate
	if e.Result {
		predicates = append(predicates, probe.ExpectResult())
	}
	if e.MinResult != nil {
		predicates = append(predicates, probe.ExpectResultAtLeast(*e.MinResult))
	}
	if e.Field != "" {
		predicates = append(predicates, probe.ExpectField(e.Field, e.FieldEquals))
	}
	if e.NotStatus != "" {
		predicates = append(predicates, probe.RejectStatus(e.NotStatus))
	}
	if len(predicates) == 0 {
		return nil
	}
	if len(predicates) == 1 {
		return predicates[0]
	}
	return probe.All(predicates...)
}
