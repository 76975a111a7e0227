package badger

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/medrag/core"
	"github.com/poiesic/medrag/schema"
	"github.com/poiesic/medrag/storage"
)

const maxDiseasePaths = 10

// orderedSet keeps insertion order and drops duplicates.
type orderedSet struct {
	items []string
	seen  map[string]bool
}

func (o *orderedSet) add(v string) {
	if o.seen == nil {
		o.seen = make(map[string]bool)
	}
	if !o.seen[v] {
		o.seen[v] = true
		o.items = append(o.items, v)
	}
}

// forEachRelationship calls fn for every stored edge, in key order.
func forEachRelationship(ctx context.Context, tx *badger.Txn, fn func(rel *core.Relationship) error) error {
	return scanPrefix(tx, []byte(relationshipPrefix), false, func(_, val []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := storage.UnmarshalRelationship(val)
		if err != nil {
			return err
		}
		return fn(rel)
	})
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func containsAny(name string, needles []string) bool {
	name = strings.ToLower(name)
	for _, n := range needles {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}

// SymptomToDiseasePaths groups diseases connected to matching symptoms in either direction.
func (s *Store) SymptomToDiseasePaths(ctx context.Context, symptoms []string) ([]core.DiseasePath, error) {
	needles := lowerAll(symptoms)
	if len(needles) == 0 {
		return nil, nil
	}

	var paths []core.DiseasePath
	err := s.backend.View(func(tx *badger.Txn) error {
		var order []string
		matched := make(map[string]*orderedSet)
		err := forEachRelationship(ctx, tx, func(rel *core.Relationship) error {
			if !slices.Contains(schema.SymptomDiseaseRelationships, rel.Type) {
				return nil
			}
			var symptom, disease string
			switch {
			case rel.Source.Type == schema.LabelSymptom && rel.Target.Type == schema.LabelDisease:
				symptom, disease = rel.Source.Name, rel.Target.Name
			case rel.Source.Type == schema.LabelDisease && rel.Target.Type == schema.LabelSymptom:
				symptom, disease = rel.Target.Name, rel.Source.Name
			default:
				return nil
			}
			if !containsAny(symptom, needles) {
				return nil
			}
			set, ok := matched[disease]
			if !ok {
				set = &orderedSet{}
				matched[disease] = set
				order = append(order, disease)
			}
			set.add(symptom)
			return nil
		})
		if err != nil {
			return err
		}

		for _, disease := range order {
			path := core.DiseasePath{
				Disease:    disease,
				Symptoms:   matched[disease].items,
				MatchCount: len(matched[disease].items),
			}
			entity, err := readEntity(tx, makeEntityKey(core.EntityKey{Type: schema.LabelDisease, Name: disease}))
			if err != nil {
				return err
			}
			if entity != nil {
				path.Description = entity.Description
			}
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(paths, func(a, b core.DiseasePath) int {
		return b.MatchCount - a.MatchCount
	})
	if len(paths) > maxDiseasePaths {
		paths = paths[:maxDiseasePaths]
	}
	return paths, nil
}

// RedFlagsFor returns the red flags reachable from matching symptoms.
func (s *Store) RedFlagsFor(ctx context.Context, symptoms []string) ([]core.RedFlag, error) {
	needles := lowerAll(symptoms)
	if len(needles) == 0 {
		return nil, nil
	}

	var flags []core.RedFlag
	err := s.backend.View(func(tx *badger.Txn) error {
		var order []string
		related := make(map[string]*orderedSet)
		err := forEachRelationship(ctx, tx, func(rel *core.Relationship) error {
			if rel.Source.Type != schema.LabelSymptom || rel.Target.Type != schema.LabelRedFlag {
				return nil
			}
			if !slices.Contains(schema.RedFlagRelationships, rel.Type) || !containsAny(rel.Source.Name, needles) {
				return nil
			}
			set, ok := related[rel.Target.Name]
			if !ok {
				set = &orderedSet{}
				related[rel.Target.Name] = set
				order = append(order, rel.Target.Name)
			}
			set.add(rel.Source.Name)
			return nil
		})
		if err != nil {
			return err
		}

		for _, name := range order {
			flag := core.RedFlag{Name: name, Symptoms: related[name].items}
			entity, err := readEntity(tx, makeEntityKey(core.EntityKey{Type: schema.LabelRedFlag, Name: name}))
			if err != nil {
				return err
			}
			if entity != nil {
				flag.Description = entity.Description
			}
			flags = append(flags, flag)
		}
		return nil
	})
	return flags, err
}

// DiseaseDetails collects symptoms, treatments, red flags and urgency levels of a disease.
func (s *Store) DiseaseDetails(ctx context.Context, disease string) (*core.DiseaseDetails, error) {
	key := core.EntityKey{Type: schema.LabelDisease, Name: core.NormalizeName(disease)}

	var details *core.DiseaseDetails
	err := s.backend.View(func(tx *badger.Txn) error {
		entity, err := readEntity(tx, makeEntityKey(key))
		if err != nil {
			return err
		}
		if entity == nil {
			return storage.ErrNotFound
		}

		var symptoms, treatments, redFlags, urgency orderedSet
		err = forEachRelationship(ctx, tx, func(rel *core.Relationship) error {
			switch {
			case rel.Target == key && rel.Type == schema.RelIndicates && rel.Source.Type == schema.LabelSymptom:
				symptoms.add(rel.Source.Name)
			case rel.Target == key && rel.Type == schema.RelTreats && rel.Source.Type == schema.LabelDrug:
				treatments.add(rel.Source.Name)
			case rel.Source == key && rel.Type == schema.RelRedFlagFor && rel.Target.Type == schema.LabelRedFlag:
				redFlags.add(rel.Target.Name)
			case rel.Source == key && rel.Type == schema.RelRequiresUrgency && rel.Target.Type == schema.LabelTriageLevel:
				urgency.add(rel.Target.Name)
			}
			return nil
		})
		if err != nil {
			return err
		}

		details = &core.DiseaseDetails{
			Disease:     entity.Name,
			Description: entity.Description,
			Symptoms:    symptoms.items,
			Treatments:  treatments.items,
			RedFlags:    redFlags.items,
			Urgency:     urgency.items,
		}
		return nil
	})
	return details, err
}

// DrugInteractions lists INTERACTS_WITH edges whose endpoints contain the given names.
func (s *Store) DrugInteractions(ctx context.Context, drugA, drugB string) ([]core.DrugInteraction, error) {
	a := strings.ToLower(strings.TrimSpace(drugA))
	b := strings.ToLower(strings.TrimSpace(drugB))
	if a == "" {
		return nil, fmt.Errorf("%w: first drug is required", storage.ErrInvalidQuery)
	}

	var interactions []core.DrugInteraction
	err := s.backend.View(func(tx *badger.Txn) error {
		return forEachRelationship(ctx, tx, func(rel *core.Relationship) error {
			if rel.Type != schema.RelInteractsWith || rel.Source.Type != schema.LabelDrug || rel.Target.Type != schema.LabelDrug {
				return nil
			}
			// The edge is matched in both directions.
			first, second := rel.Source.Name, rel.Target.Name
			if !pairMatches(first, second, a, b) {
				if !pairMatches(second, first, a, b) {
					return nil
				}
				first, second = second, first
			}
			interactions = append(interactions, core.DrugInteraction{
				DrugA:       first,
				DrugB:       second,
				Severity:    rel.Properties["severity"],
				Description: rel.Properties["description"],
			})
			return nil
		})
	})
	return interactions, err
}

func pairMatches(x, y, a, b string) bool {
	return strings.Contains(x, a) && (b == "" || strings.Contains(y, b))
}

// RelatedEntities returns neighbours of an entity over any typed relationship.
func (s *Store) RelatedEntities(ctx context.Context, key core.EntityKey, limit int) ([]core.RelatedEntity, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit %d", storage.ErrInvalidQuery, limit)
	}
	key.Name = core.NormalizeName(key.Name)

	var related []core.RelatedEntity
	err := s.backend.View(func(tx *badger.Txn) error {
		return forEachRelationship(ctx, tx, func(rel *core.Relationship) error {
			switch key {
			case rel.Source:
				related = append(related, core.RelatedEntity{Entity: rel.Target, Relationship: rel.Type})
			case rel.Target:
				related = append(related, core.RelatedEntity{Entity: rel.Source, Relationship: rel.Type})
			default:
				return nil
			}
			if len(related) >= limit {
				return errStopScan
			}
			return nil
		})
	})
	return related, err
}
