package pipeline

import (
	"strings"

	"github.com/castellan/storygraph/model"
)

// labelTable maps raw engine labels onto the domain taxonomy.
var labelTable = map[string]model.EntityType{
	"PER":          model.EntityTypePerson,
	"PERSON":       model.EntityTypePerson,
	"LOC":          model.EntityTypeLocation,
	"GPE":          model.EntityTypeLocation,
	"FAC":          model.EntityTypeLocation,
	"ORG":          model.EntityTypeOrganization,
	"ORGANIZATION": model.EntityTypeOrganization,
}

// MapLabel maps a raw engine label (with or without BIO prefix) onto
// the taxonomy. Unknown labels map to Other.
func MapLabel(label string) model.EntityType {
	normalized := strings.ToUpper(strings.TrimSpace(label))
	normalized = stripBIOPrefix(normalized)
	if entityType, ok := labelTable[normalized]; ok {
		return entityType
	}
	return model.EntityTypeOther
}

// ClassifyMentions returns annotated copies of the mentions with mapped
// entity types and confidences clamped to [0, 1]. A missing confidence
// becomes 0.5. Input mentions are not mutated.
func ClassifyMentions(mentions []*model.Mention) []*model.Mention {
	classified := make([]*model.Mention, 0, len(mentions))
	for _, m := range mentions {
		annotated := *m
		annotated.Type = MapLabel(m.Label)
		annotated.Confidence = clampConfidence(m.Confidence)
		classified = append(classified, &annotated)
	}
	return classified
}

// clampConfidence clamps to [0, 1]. A confidence of exactly zero is
// the "engine reported nothing" convention on model.Mention and
// becomes 0.5.
func clampConfidence(confidence float64) float64 {
	if confidence == 0 {
		return 0.5
	}
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
