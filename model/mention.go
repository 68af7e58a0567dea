package model

// EntityType is the domain taxonomy for extracted entities.
// New types can be added without breaking stored data because the
// database keeps the type as text.
type EntityType string

const (
	EntityTypePerson       EntityType = "person"
	EntityTypeLocation     EntityType = "location"
	EntityTypeOrganization EntityType = "organization"
	EntityTypeOther        EntityType = "other"
)

// Mention is a single occurrence of an entity name found in text.
// Mentions are immutable once produced by an extractor: the classifier
// returns annotated copies instead of mutating them.
type Mention struct {
	Text  string     `json:"text"`
	Label string     `json:"label"` // raw engine label, e.g. PER, GPE, ORG
	Type  EntityType `json:"entity_type,omitempty"`
	// Confidence of the extraction engine. Zero means the engine
	// reported no confidence; classification replaces it with 0.5.
	// Extractors reporting a genuine score must keep it above zero.
	Confidence      float64 `json:"confidence"`
	StartOffset     int     `json:"start_offset"`
	EndOffset       int     `json:"end_offset"`
	SentenceContext string  `json:"sentence_context,omitempty"`
	SourceChunkID   string  `json:"source_chunk_id,omitempty"`
}

// IngestChunk is the ingestion boundary: a chunk of already decoded
// plain text handed over by the parsing/chunking collaborator.
type IngestChunk struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}
