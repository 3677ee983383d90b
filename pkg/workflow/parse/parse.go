// Package parse ingests finished-job result envelopes.
//
// An envelope describes one job: its identity (or the data to declare
// it), optional run statistics, and the chem/calc nodes it produced.
// Parsing materializes the whole provenance subgraph in one store
// transaction; a failure anywhere leaves nothing behind.
package parse

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	kdb "github.com/molsys/chemflow/pkg/db"
	"github.com/molsys/chemflow/pkg/workflow/deserial"
)

// the envelope describes results the store already holds. The caller
// should acknowledge the envelope without retrying.
var ErrRejected = errors.New("job results already ingested")

// NodeResults is one produced chem node with the calculations
// annotating it.
type NodeResults struct {
	ChemNode  map[string]interface{}   `json:"chemnode"`
	CalcNodes []map[string]interface{} `json:"calcnodes"`
}

// JobResults is the envelope delivered by the queue when a job
// finishes.
type JobResults struct {
	Job      map[string]interface{} `json:"job"`
	RunStats map[string]interface{} `json:"runstats"`
	Nodes    []NodeResults          `json:"nodes"`
}

// ParsedNode pairs a persisted chem node with its persisted calc
// nodes, in envelope order.
type ParsedNode struct {
	ChemNode  kdb.ChemNode
	CalcNodes []kdb.CalcNode
}

// Result is everything one envelope materialized.
type Result struct {
	Job      kdb.Job
	RunStats *kdb.RunStats
	Nodes    []ParsedNode
}

type Parser struct {
	db kdb.ChemDatabase
}

func New(database kdb.ChemDatabase) *Parser {
	return &Parser{db: database}
}

// Parse ingests one envelope.
//
// Steps, all inside one transaction: check the envelope is not a
// double delivery, resolve the job (created Done when the envelope
// does not say otherwise), attach run statistics when given, then
// resolve every chem node and its calc nodes in envelope order with
// their parent references forced to the resolved job.
//
// Returns
//
// - Result: the persisted job, stats and nodes.
//
// - error: ErrRejected on double delivery, the deserializer's
// ErrValidation/ErrDeserialize/ErrUnknownEntityType on bad payloads,
// or the store's error. On any error nothing is persisted.
func (p *Parser) Parse(ctx context.Context, envelope JobResults) (Result, error) {
	if envelope.Job == nil {
		return Result{}, fmt.Errorf("%w: envelope without a job", deserial.ErrValidation)
	}

	var result Result
	err := p.db.Transaction(ctx, func(s kdb.ChemStore) error {
		if err := checkNotIngested(ctx, s, envelope.Job); err != nil {
			return err
		}

		resolver := deserial.New(s)

		job, err := resolver.ResolveJob(ctx, envelope.Job)
		if err != nil {
			return err
		}
		result.Job = job

		if envelope.RunStats != nil {
			stats, err := deserial.AsRunStats(envelope.RunStats)
			if err != nil {
				return err
			}
			saved, err := s.Jobs().AttachRunStats(ctx, job.Id, stats)
			if err != nil {
				return err
			}
			result.RunStats = &saved
			result.Job.RunStats = &saved
		}

		result.Nodes = make([]ParsedNode, 0, len(envelope.Nodes))
		for _, nr := range envelope.Nodes {
			parsed, err := p.parseNode(ctx, resolver, job.Id, nr)
			if err != nil {
				return err
			}
			result.Nodes = append(result.Nodes, parsed)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func (p *Parser) parseNode(
	ctx context.Context, resolver *deserial.Resolver, jobId int, nr NodeResults,
) (ParsedNode, error) {
	if nr.ChemNode == nil {
		return ParsedNode{}, fmt.Errorf("%w: node result without a chem node", deserial.ErrValidation)
	}

	chemPayload := withForced(nr.ChemNode, map[string]interface{}{
		"parentjob": jobId,
	})
	chem, err := resolver.ResolveChem(ctx, chemPayload)
	if err != nil {
		return ParsedNode{}, err
	}

	parsed := ParsedNode{
		ChemNode:  chem,
		CalcNodes: make([]kdb.CalcNode, 0, len(nr.CalcNodes)),
	}
	for _, rawCalc := range nr.CalcNodes {
		calcPayload := withForced(rawCalc, map[string]interface{}{
			"parentjob": jobId,
			"chemnode":  chem.ChemBody().Id,
		})
		calc, err := resolver.ResolveCalc(ctx, calcPayload)
		if err != nil {
			return ParsedNode{}, err
		}
		parsed.CalcNodes = append(parsed.CalcNodes, calc)
	}
	return parsed, nil
}

// checkNotIngested is the idempotency gate.
//
// An envelope naming a job by id or uuid is rejected when that job is
// already Done; whatever happened before, its results are in. An
// envelope with no identity is rejected when a job with the same
// (experiment, recipe, options) already exists, since re-delivery of
// an identity-less envelope is indistinguishable from new work only
// by its content.
func checkNotIngested(ctx context.Context, s kdb.ChemStore, jobDict map[string]interface{}) error {
	if id, ok := intKey(jobDict, "id"); ok {
		jobs, err := s.Jobs().Get(ctx, []int{id})
		if err != nil {
			return err
		}
		if job, found := jobs[id]; found && job.Status == kdb.Done {
			return fmt.Errorf("%w: job %d is already Done", ErrRejected, id)
		}
		return nil
	}

	if raw, ok := stringKey(jobDict, "uuid"); ok {
		uid, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			// malformed identity; the resolver rejects it with context.
			return nil
		}
		job, err := s.Jobs().GetByUuid(ctx, uid)
		if err != nil {
			if errors.Is(err, kdb.ErrMissing) {
				return nil
			}
			return err
		}
		if job.Status == kdb.Done {
			return fmt.Errorf("%w: job %s is already Done", ErrRejected, raw)
		}
		return nil
	}

	query := kdb.JobFindQuery{}
	if name, ok := nestedName(jobDict, "experiment"); ok {
		query.Experiment = []string{name}
	}
	if name, ok := nestedName(jobDict, "recipe"); ok {
		query.Recipe = []string{name}
	}
	if options, ok := jobDict["options"].(map[string]interface{}); ok {
		query.OptionsEq = options
	} else {
		query.OptionsEq = map[string]interface{}{}
	}
	if len(query.Experiment) == 0 && len(query.Recipe) == 0 {
		// nothing to collide on; the resolver will judge the payload.
		return nil
	}

	ids, err := s.Jobs().Find(ctx, query)
	if err != nil {
		return err
	}
	if len(ids) != 0 {
		return fmt.Errorf(
			"%w: %d jobs with the same experiment, recipe and options exist",
			ErrRejected, len(ids),
		)
	}
	return nil
}

// withForced copies a payload with some keys overridden. The envelope
// is left as received.
func withForced(payload map[string]interface{}, forced map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload)+len(forced))
	for k, v := range payload {
		out[k] = v
	}
	for k, v := range forced {
		out[k] = v
	}
	return out
}
