package rules_test

import (
	"strings"
	"testing"

	"github.com/molsys/chemflow/pkg/configs/rules"
	kdb "github.com/molsys/chemflow/pkg/db"
	"github.com/molsys/chemflow/pkg/utils/try"
	"github.com/molsys/chemflow/pkg/workflow/create"
)

func TestUnmarshal(t *testing.T) {
	t.Run("it reads rules with full predicates", func(t *testing.T) {
		loaded := try.To(rules.Unmarshal([]byte(`
rules:
    - name: relax-fresh-molecules
      mode: simple
      experiment: zeolites
      recipe: vasp.relax
      options:
          encut: 650
      tags:
          - auto
      inputs:
          - filter:
                experiment: [screening]
                status: [D]
                kind: [Molecule]
                tags: [candidate]
            exclude:
                recipe: [vasp.relax]
    - name: pair-binding-energies
      mode: tuple
      experiment: zeolites
      recipe: vasp.binding
      inputs:
          - filter:
                kind: [Conformer]
          - filter:
                kind: [Crystal]
                tags: [framework]
`))).OrFatal(t)

		if len(loaded) != 2 {
			t.Fatalf("expected 2 rules, got %d", len(loaded))
		}

		simple := loaded[0]
		if simple.Name != "relax-fresh-molecules" || simple.Mode != rules.Simple {
			t.Errorf("unexpected rule: %+v", simple)
		}
		expectedConf := create.Config{
			Inputs: []create.InputQuery{
				{
					Filter: kdb.NodePredicate{
						ParentExperiment: []string{"screening"},
						ParentStatus:     []kdb.JobStatus{kdb.Done},
						Kind:             []kdb.NodeKind{kdb.KindMolecule},
						Tags:             []string{"candidate"},
					},
					Exclude: kdb.NodePredicate{
						ParentRecipe: []string{"vasp.relax"},
					},
				},
			},
			OutExperiment: "zeolites",
			OutRecipe:     "vasp.relax",
			Options:       map[string]interface{}{"encut": 650},
			Tags:          []string{"auto"},
		}
		if simple.Config.OutExperiment != expectedConf.OutExperiment ||
			simple.Config.OutRecipe != expectedConf.OutRecipe {
			t.Errorf("unexpected target: %+v", simple.Config)
		}
		if len(simple.Config.Inputs) != 1 ||
			!simple.Config.Inputs[0].Filter.Equal(expectedConf.Inputs[0].Filter) ||
			!simple.Config.Inputs[0].Exclude.Equal(expectedConf.Inputs[0].Exclude) {
			t.Errorf("unexpected inputs: %+v", simple.Config.Inputs)
		}

		tuple := loaded[1]
		if tuple.Mode != rules.Tuple || len(tuple.Config.Inputs) != 2 {
			t.Errorf("unexpected rule: %+v", tuple)
		}
	})

	theory := func(conf string, fragment string) func(*testing.T) {
		return func(t *testing.T) {
			_, err := rules.Unmarshal([]byte(conf))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), fragment) {
				t.Errorf("error %v does not mention %s", err, fragment)
			}
		}
	}

	t.Run("a rule without a name is refused", theory(`
rules:
    - mode: simple
      experiment: e
      recipe: r
      inputs:
          - filter: {}
`, "name is required"))

	t.Run("an unknown mode is refused", theory(`
rules:
    - name: broken
      mode: cartesian
      experiment: e
      recipe: r
      inputs:
          - filter: {}
`, "not a creation mode"))

	t.Run("an unknown status is refused", theory(`
rules:
    - name: broken
      mode: simple
      experiment: e
      recipe: r
      inputs:
          - filter:
                status: [X]
`, "is not JobStatus"))

	t.Run("an unknown kind is refused", theory(`
rules:
    - name: broken
      mode: simple
      experiment: e
      recipe: r
      inputs:
          - filter:
                kind: [Cluster]
`, "is not NodeKind"))

	t.Run("a rule without inputs is refused", theory(`
rules:
    - name: broken
      mode: simple
      experiment: e
      recipe: r
`, "input query"))

	t.Run("duplicated rule names are refused", theory(`
rules:
    - name: twice
      mode: simple
      experiment: e
      recipe: r
      inputs:
          - filter: {}
    - name: twice
      mode: simple
      experiment: e
      recipe: r
      inputs:
          - filter: {}
`, "duplicated"))
}
