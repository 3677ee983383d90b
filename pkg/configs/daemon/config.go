// Package daemon holds the configuration of chemflowd.
package daemon

import "time"

// Configuration for the chemflow daemon.
//
// to get a `DaemonConfig` instance, use `DaemonConfigMarshall.TrySeal()` .
type DaemonConfig struct {
	database  string
	schema    string
	queue     *QueueConfig
	tasks     *TasksConfig
	batchSize int
}

// Connection string for the database.
func (d *DaemonConfig) Database() string {
	return d.database
}

// Directory holding versioned schema definitions.
// Empty = do not manage the schema.
func (d *DaemonConfig) SchemaRepository() string {
	return d.schema
}

func (d *DaemonConfig) Queue() *QueueConfig {
	return d.queue
}

func (d *DaemonConfig) Tasks() *TasksConfig {
	return d.tasks
}

// Chunk size for bulk job registration. default = 500
func (d *DaemonConfig) BatchSize() int {
	return d.batchSize
}

// Configuration for the file-based queues shared with runners.
type QueueConfig struct {
	root    string
	results string
	errors  string
}

// Root directory of the queue tree.
func (q *QueueConfig) Root() string {
	return q.root
}

// Name of the queue result envelopes arrive on. default = "results"
func (q *QueueConfig) Results() string {
	return q.results
}

// Name of the queue quarantining envelopes the store will never
// accept. default = "errors"
func (q *QueueConfig) Errors() string {
	return q.errors
}

type TasksConfig struct {
	submit *SubmitTaskConfig
	parse  *ParseTaskConfig
	create *CreateTaskConfig
}

func (t *TasksConfig) Submit() *SubmitTaskConfig {
	return t.submit
}

func (t *TasksConfig) Parse() *ParseTaskConfig {
	return t.parse
}

func (t *TasksConfig) Create() *CreateTaskConfig {
	return t.create
}

type SubmitTaskConfig struct {
	interval time.Duration
	limit    int
}

// Sleep between cycles when there was nothing to submit. default = 5s
func (s *SubmitTaskConfig) Interval() time.Duration {
	return s.interval
}

// Max jobs handed over per cycle. 0 = no limit.
func (s *SubmitTaskConfig) Limit() int {
	return s.limit
}

type ParseTaskConfig struct {
	interval time.Duration
}

// Sleep between cycles when the results queue was empty. default = 5s
func (p *ParseTaskConfig) Interval() time.Duration {
	return p.interval
}

type CreateTaskConfig struct {
	interval time.Duration
	rules    string
}

// Sleep between rule evaluations. default = 1m
func (c *CreateTaskConfig) Interval() time.Duration {
	return c.interval
}

// Path of the job creation rules file. Empty = the create task is off.
func (c *CreateTaskConfig) Rules() string {
	return c.rules
}
