package contracts

// selectNext returns the next requirement for a contract under construction.
// Missing mandatory kinds come first. Otherwise one optional kind is drawn by
// weight; ok is false when all weights are zero or the drawn kind has no
// eligible tile left.
func (g *Generator) selectNext(size Size, typ Type, existing []Requirement) (Requirement, bool, error) {
	for _, k := range mandatoryKinds {
		if !hasKind(existing, k) {
			return variants[k].create(g, size, typ, existing)
		}
	}

	weights := make([]float64, len(optionalKinds))
	sum := 0.0
	for i, k := range optionalKinds {
		weights[i] = variants[k].weight(existing)
		sum += weights[i]
	}
	if sum <= 0 {
		return Requirement{}, false, nil
	}

	roll := g.Rand.Float64() * sum
	pick := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		pick = i
		roll -= w
		if roll <= 0 {
			break
		}
	}
	return variants[optionalKinds[pick]].create(g, size, typ, existing)
}
