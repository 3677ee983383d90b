package daemon_test

import (
	"testing"
	"time"

	"github.com/molsys/chemflow/pkg/configs/daemon"
	"github.com/molsys/chemflow/pkg/utils/try"
)

func TestUnmarshal(t *testing.T) {
	t.Run("a full config is read as written", func(t *testing.T) {
		conf := try.To(daemon.Unmarshal([]byte(`
database: postgres://chemflow:pass@db:5432/chemflow
schemaRepository: /opt/chemflow/schema
queue:
    root: /var/lib/chemflow/queue
    results: finished
    errors: quarantine
tasks:
    submit:
        interval: 3s
        limit: 100
    parse:
        interval: 1s
    create:
        interval: 2m
        rules: /etc/chemflow/rules.yaml
batchSize: 250
`))).OrFatal(t)

		if conf.Database() != "postgres://chemflow:pass@db:5432/chemflow" {
			t.Errorf("unexpected database: %s", conf.Database())
		}
		if conf.SchemaRepository() != "/opt/chemflow/schema" {
			t.Errorf("unexpected schema repository: %s", conf.SchemaRepository())
		}
		if conf.Queue().Root() != "/var/lib/chemflow/queue" {
			t.Errorf("unexpected queue root: %s", conf.Queue().Root())
		}
		if conf.Queue().Results() != "finished" {
			t.Errorf("unexpected results queue: %s", conf.Queue().Results())
		}
		if conf.Queue().Errors() != "quarantine" {
			t.Errorf("unexpected error queue: %s", conf.Queue().Errors())
		}
		if conf.Tasks().Submit().Interval() != 3*time.Second {
			t.Errorf("unexpected submit interval: %s", conf.Tasks().Submit().Interval())
		}
		if conf.Tasks().Submit().Limit() != 100 {
			t.Errorf("unexpected submit limit: %d", conf.Tasks().Submit().Limit())
		}
		if conf.Tasks().Parse().Interval() != time.Second {
			t.Errorf("unexpected parse interval: %s", conf.Tasks().Parse().Interval())
		}
		if conf.Tasks().Create().Interval() != 2*time.Minute {
			t.Errorf("unexpected create interval: %s", conf.Tasks().Create().Interval())
		}
		if conf.Tasks().Create().Rules() != "/etc/chemflow/rules.yaml" {
			t.Errorf("unexpected rules path: %s", conf.Tasks().Create().Rules())
		}
		if conf.BatchSize() != 250 {
			t.Errorf("unexpected batch size: %d", conf.BatchSize())
		}
	})

	t.Run("omitted sections fall back to defaults", func(t *testing.T) {
		conf := try.To(daemon.Unmarshal([]byte(`
database: postgres://localhost/chemflow
queue:
    root: /queue
`))).OrFatal(t)

		if conf.Queue().Results() != "results" {
			t.Errorf("unexpected results queue: %s", conf.Queue().Results())
		}
		if conf.Queue().Errors() != "errors" {
			t.Errorf("unexpected error queue: %s", conf.Queue().Errors())
		}
		if conf.Tasks().Submit().Interval() != 5*time.Second {
			t.Errorf("unexpected submit interval: %s", conf.Tasks().Submit().Interval())
		}
		if conf.Tasks().Submit().Limit() != 0 {
			t.Errorf("unexpected submit limit: %d", conf.Tasks().Submit().Limit())
		}
		if conf.Tasks().Parse().Interval() != 5*time.Second {
			t.Errorf("unexpected parse interval: %s", conf.Tasks().Parse().Interval())
		}
		if conf.Tasks().Create().Interval() != time.Minute {
			t.Errorf("unexpected create interval: %s", conf.Tasks().Create().Interval())
		}
		if conf.Tasks().Create().Rules() != "" {
			t.Errorf("unexpected rules path: %s", conf.Tasks().Create().Rules())
		}
		if conf.BatchSize() != 500 {
			t.Errorf("unexpected batch size: %d", conf.BatchSize())
		}
	})

	for name, conf := range map[string]string{
		"a config without database": `
queue:
    root: /queue
`,
		"a config without queue": `
database: postgres://localhost/chemflow
`,
		"a config without queue root": `
database: postgres://localhost/chemflow
queue:
    results: finished
`,
		"a config with a broken interval": `
database: postgres://localhost/chemflow
queue:
    root: /queue
tasks:
    parse:
        interval: pretty often
`,
		"a config with a negative batch size": `
database: postgres://localhost/chemflow
queue:
    root: /queue
batchSize: -1
`,
	} {
		t.Run(name+" is refused", func(t *testing.T) {
			if _, err := daemon.Unmarshal([]byte(conf)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
