package models

import "time"

// OntologyProperty maps a concept attribute to a database column.
type OntologyProperty struct {
	Name       string  `json:"name" yaml:"name"`
	DataType   string  `json:"data_type" yaml:"data_type"`
	Column     string  `json:"column" yaml:"column"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// OntologyConcept is a domain entity extracted from the schema, anchored to
// the table it describes.
type OntologyConcept struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Synonyms    []string           `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
	Table       string             `json:"table" yaml:"table"`
	Properties  []OntologyProperty `json:"properties,omitempty" yaml:"properties,omitempty"`
	Confidence  float64            `json:"confidence" yaml:"confidence"`
}

// ConceptRelationship links two concepts, usually following a foreign key.
type ConceptRelationship struct {
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Ontology is the full semantic model generated for one connection.
type Ontology struct {
	ConnectionID  string                `json:"connection_id" yaml:"connection_id"`
	DatabaseName  string                `json:"database_name" yaml:"database_name"`
	GeneratedAt   time.Time             `json:"generated_at" yaml:"generated_at"`
	Concepts      []OntologyConcept     `json:"concepts" yaml:"concepts"`
	Relationships []ConceptRelationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// FindConcept returns the concept with the given name, or nil.
func (o *Ontology) FindConcept(name string) *OntologyConcept {
	for i := range o.Concepts {
		if o.Concepts[i].Name == name {
			return &o.Concepts[i]
		}
	}
	return nil
}
