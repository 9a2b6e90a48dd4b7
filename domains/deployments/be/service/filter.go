package service

// Normalize applies the dependency implications between rollback categories:
// removing entities requires removing the relationships that reference them,
// removing the solution requires emptying it first, and removing the
// publisher requires removing its solution. The filtering engine afterwards
// drops whatever a prior pass already handled.
func (o RollbackOptions) Normalize() RollbackOptions {
	if o.Publisher {
		o.Solution = true
	}
	if o.Solution {
		o.Relationships = true
		o.CustomEntities = true
		o.CDMEntities = true
		o.CustomGlobalChoices = true
	}
	if o.CustomEntities {
		o.Relationships = true
	}
	return o
}

// FilterRemainingComponents reconciles the requested rollback scope against
// everything prior passes already selected and attempted. It returns the
// effective options and the effective manifest slice for this pass. The
// inputs are never mutated; calling with an empty history returns the request
// as-is, and an exhausted history yields empty categories so the executor
// becomes a no-op that still records completion.
func FilterRemainingComponents(data RollbackData, history []RollbackEntry, requested RollbackOptions) (RollbackOptions, RollbackData) {
	effective := requested

	removedRelationships := make(map[string]struct{})
	removedEntities := make(map[string]struct{})
	removedCDM := make(map[string]struct{})
	removedChoices := make(map[string]struct{})
	solutionGone := false
	publisherGone := false

	for _, entry := range history {
		if entry.Options.Relationships {
			for _, rel := range entry.Data.Relationships {
				removedRelationships[rel.Key()] = struct{}{}
			}
		}
		if entry.Options.CustomEntities {
			for _, name := range entry.Data.CustomEntities {
				removedEntities[name] = struct{}{}
			}
		}
		if entry.Options.CDMEntities {
			for _, name := range entry.Data.CDMEntities {
				removedCDM[name] = struct{}{}
			}
		}
		if entry.Options.CustomGlobalChoices {
			for _, choice := range entry.Data.GlobalChoicesCreated {
				removedChoices[choice.Name] = struct{}{}
			}
		}
		if entry.Results.SolutionDeleted {
			solutionGone = true
		}
		if entry.Results.PublisherDeleted {
			publisherGone = true
		}
	}

	filtered := RollbackData{}
	for _, rel := range data.Relationships {
		if _, gone := removedRelationships[rel.Key()]; !gone {
			filtered.Relationships = append(filtered.Relationships, rel)
		}
	}
	for _, name := range data.CustomEntities {
		if _, gone := removedEntities[name]; !gone {
			filtered.CustomEntities = append(filtered.CustomEntities, name)
		}
	}
	for _, name := range data.CDMEntities {
		if _, gone := removedCDM[name]; !gone {
			filtered.CDMEntities = append(filtered.CDMEntities, name)
		}
	}
	for _, choice := range data.GlobalChoicesCreated {
		if _, gone := removedChoices[choice.Name]; !gone {
			filtered.GlobalChoicesCreated = append(filtered.GlobalChoicesCreated, choice)
		}
	}

	// A category with nothing left is deselected so the executor skips it
	// without surfacing not-found noise.
	if len(filtered.Relationships) == 0 {
		effective.Relationships = false
	}
	if len(filtered.CustomEntities) == 0 {
		effective.CustomEntities = false
	}
	if len(filtered.CDMEntities) == 0 {
		effective.CDMEntities = false
	}
	if len(filtered.GlobalChoicesCreated) == 0 {
		effective.CustomGlobalChoices = false
	}

	// Parent resources removed by a prior pass stay removed, even when the
	// current request asks for them again.
	if solutionGone {
		effective.Solution = false
	}
	if publisherGone {
		effective.Publisher = false
	}
	if !effective.Solution {
		// Publisher deletion requires the solution to be gone first; if the
		// solution is neither selected nor already removed, keep the publisher.
		if effective.Publisher && !solutionGone {
			effective.Publisher = false
		}
	}

	return effective, filtered
}
