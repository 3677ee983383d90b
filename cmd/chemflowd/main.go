package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/molsys/chemflow/cmd/chemflowd/recurring"
	"github.com/molsys/chemflow/cmd/chemflowd/tasks"
	"github.com/molsys/chemflow/cmd/chemflowd/tasks/creation"
	"github.com/molsys/chemflow/cmd/chemflowd/tasks/ingestion"
	"github.com/molsys/chemflow/cmd/chemflowd/tasks/submission"
	configs "github.com/molsys/chemflow/pkg/configs/daemon"
	kpg "github.com/molsys/chemflow/pkg/db/postgres"
	"github.com/molsys/chemflow/pkg/loop"
	"github.com/molsys/chemflow/pkg/queue/dirqueue"
	"github.com/molsys/chemflow/pkg/utils/args"
	"github.com/molsys/chemflow/pkg/utils/filewatch"
	"github.com/molsys/chemflow/pkg/utils/try"
	"github.com/molsys/chemflow/pkg/workflow/parse"
	"github.com/molsys/chemflow/pkg/workflow/submit"
)

func main() {
	logger := log.Default()
	ctx, cancel := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	// call cancel() when this function exits
	defer cancel()

	// define command line flags
	//-- path to config file
	pconfig := flag.String(
		"config", os.Getenv("CHEMFLOW_CONFIG"), "path to config file",
	)
	pSchemaRepo := flag.String(
		"schema-repo", os.Getenv("CHEMFLOW_SCHEMA"),
		"schema repository path (overrides config)",
	)
	//-- which task loop to run
	taskType := args.Parser(tasks.AsType)
	flag.Var(taskType, "type", "one of task type (submit|parse|create)")
	//-- dry run (create only)
	pDryRun := flag.Bool(
		"dry-run", false, "for -type create: log what the rules would create, write nothing",
	)
	//-- one-shot administration
	pDeleteTree := flag.Int(
		"delete-tree", 0,
		"delete the job with this id and every job downstream of it, then exit. -type is not needed",
	)
	//-- loop policy
	policy := args.Parser(recurring.ParsePolicy)
	flag.Var(
		policy, "policy",
		`loop policy (syntax: forever[:COOLDOWN]|backlog).`+
			` "forever[:COOLDOWN]" = run forever until error. When backlog is over, `+
			`wait COOLDOWN (optional duration) as interval.`+
			` "backlog" = run until error or backlog is over.`+
			` default: forever with the task's configured interval.`,
	)
	// parse command line flags
	flag.Parse()

	if !taskType.IsSet() && *pDeleteTree == 0 {
		logger.Fatal("-type is required (submit|parse|create)")
	}

	conf := try.To(configs.LoadDaemonConfig(*pconfig)).OrFatal(logger)

	schemaRepo := conf.SchemaRepository()
	if *pSchemaRepo != "" {
		schemaRepo = *pSchemaRepo
	}
	options := []kpg.Option{}
	if schemaRepo != "" {
		options = append(options, kpg.WithSchemaRepository(schemaRepo))
	}

	db := try.To(kpg.New(ctx, conf.Database(), options...)).OrFatal(logger)
	defer db.Close()

	if schemaRepo != "" {
		if err := db.Schema().Upgrade(ctx); err != nil {
			logger.Fatal(err)
		}
		sctx, scancel := db.Schema().Context(ctx)
		defer scancel()
		ctx = sctx
	}

	if *pDeleteTree != 0 {
		// one-shot administration: no loop, no config watch.
		if err := db.Jobs().DeleteTree(ctx, *pDeleteTree); err != nil {
			logger.Fatal(err)
		}
		logger.Printf("deleted job %d and every job downstream of it", *pDeleteTree)
		return
	}

	watched := []string{*pconfig}
	if taskType.Value() == tasks.Create {
		if conf.Tasks().Create().Rules() == "" {
			logger.Fatal("the create task needs tasks.create.rules in the config")
		}
		watched = append(watched, conf.Tasks().Create().Rules())
	}
	{
		// quit on config change; the process manager restarts us with
		// the new configuration.
		wctx, cancel, err := filewatch.UntilModifyContext(ctx, watched...)
		if err != nil {
			logger.Fatal(err)
		}
		defer cancel()
		ctx = wctx
	}

	q := dirqueue.New(conf.Queue().Root())

	var task recurring.Task[int]
	var interval time.Duration
	switch taskType.Value() {
	case tasks.Submit:
		task = submission.Task(
			logger, submit.New(db, q), conf.Tasks().Submit().Limit(),
		)
		interval = conf.Tasks().Submit().Interval()
	case tasks.Parse:
		task = ingestion.Task(
			logger, q.Consumer(conf.Queue().Results()),
			q, conf.Queue().Errors(), parse.New(db),
		)
		interval = conf.Tasks().Parse().Interval()
	case tasks.Create:
		task = creation.Task(
			logger, db, conf.Tasks().Create().Rules(), conf.BatchSize(), *pDryRun,
		)
		interval = conf.Tasks().Create().Interval()
	}

	pol := recurring.Policy(recurring.Forever(interval))
	if policy.IsSet() {
		pol = policy.Value()
	}
	pol = recurring.UntilError(pol)

	logger.Printf(`start loop "%s" /w policy "%s"`, taskType.Value(), pol)

	_, err := loop.Start(ctx, 0, task.Applied(pol))

	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		logger.Fatal(err, " (loop context is cancelled by: ", context.Cause(ctx), ")")
	}
	logger.Fatal(err)
}
