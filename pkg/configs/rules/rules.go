// Package rules loads the job creation rules file. Each rule names a
// creation mode and the target (experiment, recipe) pair, plus the
// input queries feeding it.
//
// Unlike the daemon config, the rules file is user data re-read while
// the daemon runs, so broken rules come back as errors, not panics.
package rules

import (
	"fmt"
	"os"

	kdb "github.com/molsys/chemflow/pkg/db"
	"github.com/molsys/chemflow/pkg/utils"
	"github.com/molsys/chemflow/pkg/workflow/create"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	// one job per matching input node.
	Simple Mode = "simple"

	// one job per new combination of input nodes, one from each query.
	Tuple Mode = "tuple"
)

func AsMode(mode string) (Mode, error) {
	switch mode {
	case string(Simple):
		return Simple, nil
	case string(Tuple):
		return Tuple, nil
	default:
		return "", fmt.Errorf("'%s' is not a creation mode (simple|tuple)", mode)
	}
}

// Rule is one sealed job creation rule.
type Rule struct {
	Name   string
	Mode   Mode
	Config create.Config
}

// load rules from a file.
func Load(filepath string) ([]Rule, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(content []byte) ([]Rule, error) {
	var doc rulesMarshall
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(doc.Rules))
	seen := map[string]struct{}{}
	for n, rm := range doc.Rules {
		rule, err := rm.seal()
		if err != nil {
			name := rm.Name
			if name == "" {
				name = fmt.Sprintf("#%d", n+1)
			}
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		if _, ok := seen[rule.Name]; ok {
			return nil, fmt.Errorf("rule %s: duplicated name", rule.Name)
		}
		seen[rule.Name] = struct{}{}
		rules = append(rules, rule)
	}
	return rules, nil
}

type rulesMarshall struct {
	Rules []ruleMarshall `yaml:"rules"`
}

type ruleMarshall struct {
	Name       string                 `yaml:"name"`
	Mode       string                 `yaml:"mode"`
	Experiment string                 `yaml:"experiment"`
	Recipe     string                 `yaml:"recipe"`
	Options    map[string]interface{} `yaml:"options,omitempty"`
	Tags       []string               `yaml:"tags,omitempty"`
	Inputs     []inputMarshall        `yaml:"inputs"`
}

func (rm ruleMarshall) seal() (Rule, error) {
	if rm.Name == "" {
		return Rule{}, fmt.Errorf("name is required")
	}
	mode, err := AsMode(rm.Mode)
	if err != nil {
		return Rule{}, err
	}
	if rm.Experiment == "" {
		return Rule{}, fmt.Errorf("experiment is required")
	}
	if rm.Recipe == "" {
		return Rule{}, fmt.Errorf("recipe is required")
	}
	if len(rm.Inputs) == 0 {
		return Rule{}, fmt.Errorf("at least one input query is required")
	}

	inputs := make([]create.InputQuery, 0, len(rm.Inputs))
	for n, im := range rm.Inputs {
		input, err := im.seal()
		if err != nil {
			return Rule{}, fmt.Errorf("input #%d: %w", n+1, err)
		}
		inputs = append(inputs, input)
	}

	return Rule{
		Name: rm.Name,
		Mode: mode,
		Config: create.Config{
			Inputs:        inputs,
			OutExperiment: rm.Experiment,
			OutRecipe:     rm.Recipe,
			Options:       rm.Options,
			Tags:          rm.Tags,
		},
	}, nil
}

type inputMarshall struct {
	Filter  predicateMarshall `yaml:"filter"`
	Exclude predicateMarshall `yaml:"exclude,omitempty"`
}

func (im inputMarshall) seal() (create.InputQuery, error) {
	filter, err := im.Filter.seal()
	if err != nil {
		return create.InputQuery{}, fmt.Errorf("filter: %w", err)
	}
	exclude, err := im.Exclude.seal()
	if err != nil {
		return create.InputQuery{}, fmt.Errorf("exclude: %w", err)
	}
	return create.InputQuery{Filter: filter, Exclude: exclude}, nil
}

type predicateMarshall struct {
	Experiment []string `yaml:"experiment,omitempty"`
	Recipe     []string `yaml:"recipe,omitempty"`
	Status     []string `yaml:"status,omitempty"`
	Kind       []string `yaml:"kind,omitempty"`
	Tags       []string `yaml:"tags,omitempty"`
}

func (pm predicateMarshall) seal() (kdb.NodePredicate, error) {
	status, err := utils.MapUntilError(pm.Status, kdb.AsJobStatus)
	if err != nil {
		return kdb.NodePredicate{}, err
	}
	kind, err := utils.MapUntilError(pm.Kind, kdb.AsNodeKind)
	if err != nil {
		return kdb.NodePredicate{}, err
	}
	return kdb.NodePredicate{
		ParentExperiment: pm.Experiment,
		ParentRecipe:     pm.Recipe,
		ParentStatus:     status,
		Kind:             kind,
		Tags:             pm.Tags,
	}, nil
}
