package daemon

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// load chemflowd config from a file.
//
// args:
//   - filepath: filepath refers a config file.
//
// returns *DaemonConfig, error:
//
//	When loading success, returns `(*DaemonConfig, nil)`.
//	Otherwise, returns `(nil, error)`.
func LoadDaemonConfig(filepath string) (*DaemonConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (out *DaemonConfig, err error) {
	var _out *DaemonConfigMarshall
	if err := yaml.Unmarshal(conf, &_out); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("misconfiguration: %v", r)
		}
	}()
	out = TrySeal(_out)
	return out, nil
}

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/daemon.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

// Configuration of the chemflow daemon.
//
// This type is marshalling value and mutable.
// Consider to use immutable version, `DaemonConfig`.
// You can get a `DaemonConfig` instance with `TrySeal(marshall)` .
type DaemonConfigMarshall struct {
	Database         string               `yaml:"database"`
	SchemaRepository string               `yaml:"schemaRepository,omitempty"`
	Queue            *QueueConfigMarshall `yaml:"queue"`
	Tasks            *TasksConfigMarshall `yaml:"tasks,omitempty"`
	BatchSize        int                  `yaml:"batchSize,omitempty"`
}

var _ Marshalled[*DaemonConfig] = &DaemonConfigMarshall{}

func (d *DaemonConfigMarshall) trySeal(path string) *DaemonConfig {
	batchSize := d.BatchSize
	if batchSize == 0 {
		batchSize = 500
	}
	if batchSize < 0 {
		panic(path + ".batchSize should be positive")
	}

	tasks := d.Tasks
	if tasks == nil {
		tasks = &TasksConfigMarshall{}
	}

	return &DaemonConfig{
		database:  required(d.Database, path+".database"),
		schema:    d.SchemaRepository,
		queue:     nonnil(d.Queue, path+".queue").trySeal(path + ".queue"),
		tasks:     tasks.trySeal(path + ".tasks"),
		batchSize: batchSize,
	}
}

type QueueConfigMarshall struct {
	Root    string `yaml:"root"`
	Results string `yaml:"results,omitempty"`
	Errors  string `yaml:"errors,omitempty"`
}

func (q *QueueConfigMarshall) trySeal(path string) *QueueConfig {
	results := q.Results
	if results == "" {
		results = "results"
	}
	errors := q.Errors
	if errors == "" {
		errors = "errors"
	}
	return &QueueConfig{
		root:    required(q.Root, path+".root"),
		results: results,
		errors:  errors,
	}
}

type TasksConfigMarshall struct {
	Submit *SubmitTaskConfigMarshall `yaml:"submit,omitempty"`
	Parse  *ParseTaskConfigMarshall  `yaml:"parse,omitempty"`
	Create *CreateTaskConfigMarshall `yaml:"create,omitempty"`
}

func (t *TasksConfigMarshall) trySeal(path string) *TasksConfig {
	submit := t.Submit
	if submit == nil {
		submit = &SubmitTaskConfigMarshall{}
	}
	parse := t.Parse
	if parse == nil {
		parse = &ParseTaskConfigMarshall{}
	}
	create := t.Create
	if create == nil {
		create = &CreateTaskConfigMarshall{}
	}
	return &TasksConfig{
		submit: submit.trySeal(path + ".submit"),
		parse:  parse.trySeal(path + ".parse"),
		create: create.trySeal(path + ".create"),
	}
}

type SubmitTaskConfigMarshall struct {
	Interval string `yaml:"interval,omitempty"`
	Limit    int    `yaml:"limit,omitempty"`
}

func (s *SubmitTaskConfigMarshall) trySeal(path string) *SubmitTaskConfig {
	if s.Limit < 0 {
		panic(path + ".limit should not be negative")
	}
	return &SubmitTaskConfig{
		interval: interval(s.Interval, 5*time.Second, path+".interval"),
		limit:    s.Limit,
	}
}

type ParseTaskConfigMarshall struct {
	Interval string `yaml:"interval,omitempty"`
}

func (p *ParseTaskConfigMarshall) trySeal(path string) *ParseTaskConfig {
	return &ParseTaskConfig{
		interval: interval(p.Interval, 5*time.Second, path+".interval"),
	}
}

type CreateTaskConfigMarshall struct {
	Interval string `yaml:"interval,omitempty"`
	Rules    string `yaml:"rules,omitempty"`
}

func (c *CreateTaskConfigMarshall) trySeal(path string) *CreateTaskConfig {
	return &CreateTaskConfig{
		interval: interval(c.Interval, time.Minute, path+".interval"),
		rules:    c.Rules,
	}
}

func interval(v string, fallback time.Duration, path string) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s can not be parsed: %w", path, err))
	}
	if d < 0 {
		panic(path + " should not be negative")
	}
	return d
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
