package search

import (
	"context"
	"slices"

	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/storage"
)

// PossibleConditions ranks the diseases linked to each symptom. Every matching
// symptom adds 1/len(symptoms) to a disease's probability, capped at 1.
// Diseases with equal probability keep the order in which they were first found.
func PossibleConditions(ctx context.Context, reader storage.GraphReader, symptoms []string) ([]core.Condition, error) {
	if len(symptoms) == 0 {
		return nil, ErrNoSymptoms
	}

	step := 1 / float32(len(symptoms))
	var conditions []core.Condition
	index := make(map[string]int)

	for _, symptom := range symptoms {
		paths, err := reader.SymptomToDiseasePaths(ctx, []string{symptom})
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			i, ok := index[p.Disease]
			if !ok {
				i = len(conditions)
				index[p.Disease] = i
				conditions = append(conditions, core.Condition{Disease: p.Disease, Description: p.Description})
			}
			c := &conditions[i]
			if slices.Contains(c.MatchedSymptoms, symptom) {
				continue
			}
			c.MatchedSymptoms = append(c.MatchedSymptoms, symptom)
			c.Probability = min(1, c.Probability+step)
		}
	}

	slices.SortStableFunc(conditions, func(a, b core.Condition) int {
		switch {
		case a.Probability > b.Probability:
			return -1
		case a.Probability < b.Probability:
			return 1
		}
		return 0
	})
	return conditions, nil
}

// RedFlags returns the distinct red flag names reachable from symptoms.
func RedFlags(ctx context.Context, reader storage.GraphReader, symptoms []string) ([]string, error) {
	if len(symptoms) == 0 {
		return nil, ErrNoSymptoms
	}
	flags, err := reader.RedFlagsFor(ctx, symptoms)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(flags))
	for _, f := range flags {
		if !slices.Contains(names, f.Name) {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

// Interactions checks every pair of drugs for a known interaction.
func Interactions(ctx context.Context, reader storage.GraphReader, drugs []string) ([]core.DrugInteraction, error) {
	var interactions []core.DrugInteraction
	for i, a := range drugs {
		for _, b := range drugs[i+1:] {
			found, err := reader.DrugInteractions(ctx, a, b)
			if err != nil {
				return nil, err
			}
			interactions = append(interactions, found...)
		}
	}
	return interactions, nil
}
