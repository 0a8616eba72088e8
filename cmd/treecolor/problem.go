package main

import (
	"os"

	"github.com/bits-and-blooms/bitset"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/synthesis-framework/treecolor/pkg/mdp"
	"github.com/synthesis-framework/treecolor/pkg/synth"
	"github.com/synthesis-framework/treecolor/pkg/tree"
)

// problemFile is the on-disk description of a synthesis problem, YAML or
// JSON.
type problemFile struct {
	Variables []struct {
		Name   string  `json:"name"`
		Domain []int64 `json:"domain"`
	} `json:"variables"`
	Tree         [][3]int `json:"tree"`
	NumActions   int      `json:"numActions"`
	InitialState int      `json:"initialState"`
	States       []struct {
		Valuation []int64 `json:"valuation"`
		Choices   []struct {
			Action   int `json:"action"`
			Branches []struct {
				Dst  int     `json:"dst"`
				Prob float64 `json:"prob"`
			} `json:"branches"`
		} `json:"choices"`
	} `json:"states"`
	Objective struct {
		Target    []int   `json:"target"`
		Maximize  bool    `json:"maximize"`
		Threshold float64 `json:"threshold"`
	} `json:"objective"`
}

type problem struct {
	ts   *mdp.TransitionSystem
	tr   *tree.Tree
	spec synth.Specification
}

func loadProblem(path string) (*problem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading problem file")
	}
	var pf problemFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, errors.Wrap(err, "parsing problem file")
	}

	vars := make([]tree.Variable, len(pf.Variables))
	for i, v := range pf.Variables {
		vars[i] = tree.Variable{Name: v.Name, Domain: v.Domain}
	}
	tr, err := tree.New(vars, pf.Tree, pf.NumActions)
	if err != nil {
		return nil, err
	}

	rowGroups := []int{0}
	var branches [][]mdp.Branch
	var actions []int
	valuations := make([][]int64, len(pf.States))
	for s, state := range pf.States {
		valuations[s] = state.Valuation
		for _, choice := range state.Choices {
			actions = append(actions, choice.Action)
			bs := make([]mdp.Branch, len(choice.Branches))
			for i, b := range choice.Branches {
				bs[i] = mdp.Branch{Dst: b.Dst, Prob: b.Prob}
			}
			branches = append(branches, bs)
		}
		rowGroups = append(rowGroups, len(actions))
	}
	ts, err := mdp.New(rowGroups, branches, actions, pf.NumActions, pf.InitialState, valuations)
	if err != nil {
		return nil, err
	}

	target := bitset.New(uint(ts.NumStates()))
	for _, s := range pf.Objective.Target {
		if s < 0 || s >= ts.NumStates() {
			return nil, errors.Errorf("target state %d out of range", s)
		}
		target.Set(uint(s))
	}
	return &problem{
		ts: ts,
		tr: tr,
		spec: synth.Specification{
			Target:    target,
			Maximize:  pf.Objective.Maximize,
			Threshold: pf.Objective.Threshold,
		},
	}, nil
}
