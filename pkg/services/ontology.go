package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/indaba-ai/indaba-engine/pkg/llm"
	"github.com/indaba-ai/indaba-engine/pkg/models"
	"github.com/indaba-ai/indaba-engine/pkg/prompts"
	"github.com/indaba-ai/indaba-engine/pkg/services/workqueue"
)

const (
	// ontologyBatchSize is how many tables one extraction round-trip covers.
	ontologyBatchSize = 10
	// ontologyTemperature keeps extraction output stable.
	ontologyTemperature = 0.2
)

// extractionPayload is the JSON shape the extraction prompt demands.
type extractionPayload struct {
	Concepts      []models.OntologyConcept     `json:"concepts"`
	Relationships []models.ConceptRelationship `json:"relationships"`
}

// OntologyService extracts a semantic model from a schema snapshot in
// batches, merges the batch results, registers the outcome for hint
// resolution, and writes YAML and OWL artifacts.
type OntologyService struct {
	capability   *llm.Capability
	registry     *OntologyRegistry
	graph        *InsightGraph
	outputDir    string
	exportFormat string
	logger       *zap.Logger

	now func() time.Time

	artifactsMu sync.Mutex
	artifacts   map[string][]string
}

// OntologyOption tunes the service.
type OntologyOption func(*OntologyService)

// WithExportFormat selects the artifacts written on export: yml, owl, or
// both.
func WithExportFormat(format string) OntologyOption {
	return func(s *OntologyService) {
		if format != "" {
			s.exportFormat = format
		}
	}
}

// NewOntologyService wires the service. outputDir receives the exported
// artifacts; empty disables export.
func NewOntologyService(capability *llm.Capability, registry *OntologyRegistry, graph *InsightGraph, outputDir string, logger *zap.Logger, opts ...OntologyOption) *OntologyService {
	s := &OntologyService{
		capability:   capability,
		registry:     registry,
		graph:        graph,
		outputDir:    outputDir,
		exportFormat: "both",
		logger:       logger.Named("ontology-service"),
		now:          time.Now,
		artifacts:    make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Artifacts returns the file paths written by the most recent export for
// the connection.
func (s *OntologyService) Artifacts(connectionID string) []string {
	s.artifactsMu.Lock()
	defer s.artifactsMu.Unlock()
	return append([]string(nil), s.artifacts[connectionID]...)
}

type batchTask struct {
	id      string
	tables  []models.TableDescriptor
	service *OntologyService

	mu      *sync.Mutex
	results *[]extractionPayload
}

func (t *batchTask) ID() string   { return t.id }
func (t *batchTask) Name() string { return "ontology-extraction" }

func (t *batchTask) Execute(ctx context.Context) error {
	prompt := prompts.BuildOntologyExtractionPrompt(t.tables)
	raw, err := t.service.capability.Client().GenerateResponse(
		ctx, prompt, prompts.OntologyExtractionSystem, ontologyTemperature)
	if err != nil {
		return err
	}

	payload, err := llm.ParseJSONResponse[extractionPayload](raw)
	if err != nil {
		return fmt.Errorf("batch %s: %w", t.id, err)
	}

	t.mu.Lock()
	*t.results = append(*t.results, payload)
	t.mu.Unlock()
	return nil
}

// Generate extracts the ontology for the snapshot, batch by batch. Partial
// failure is tolerated: surviving batches still produce an ontology, and
// the error reports what was lost.
func (s *OntologyService) Generate(ctx context.Context, connectionID string, snap *models.SchemaSnapshot) (*models.Ontology, error) {
	if len(snap.Tables) == 0 {
		return nil, fmt.Errorf("snapshot has no tables")
	}

	var (
		mu      sync.Mutex
		results []extractionPayload
	)

	queue := workqueue.New(s.logger)
	for i := 0; i < len(snap.Tables); i += ontologyBatchSize {
		end := i + ontologyBatchSize
		if end > len(snap.Tables) {
			end = len(snap.Tables)
		}
		queue.Enqueue(&batchTask{
			id:      fmt.Sprintf("batch-%d", i/ontologyBatchSize),
			tables:  snap.Tables[i:end],
			service: s,
			mu:      &mu,
			results: &results,
		})
	}

	waitErr := queue.Wait(ctx)
	if len(results) == 0 {
		if waitErr != nil {
			return nil, waitErr
		}
		return nil, fmt.Errorf("extraction produced no concepts")
	}
	if waitErr != nil {
		s.logger.Warn("ontology generation lost batches",
			zap.String("connection_id", connectionID),
			zap.Error(waitErr))
	}

	ontology := s.merge(connectionID, snap, results)

	s.registry.Register(connectionID, ontology)
	if s.graph != nil {
		s.graph.IngestOntology(connectionID, ontology)
		s.graph.IngestSchema(connectionID, snap)
	}

	if s.outputDir != "" {
		if err := s.export(ontology); err != nil {
			s.logger.Warn("ontology export failed", zap.Error(err))
		}
	}

	s.logger.Info("ontology generated",
		zap.String("connection_id", connectionID),
		zap.Int("concepts", len(ontology.Concepts)),
		zap.Int("relationships", len(ontology.Relationships)))
	return ontology, nil
}

// merge folds batch payloads into one ontology. Same-name concepts merge
// with max confidence and unioned synonyms and properties; output order is
// deterministic.
func (s *OntologyService) merge(connectionID string, snap *models.SchemaSnapshot, payloads []extractionPayload) *models.Ontology {
	byName := make(map[string]*models.OntologyConcept)
	var order []string

	for _, p := range payloads {
		for _, c := range p.Concepts {
			existing, ok := byName[c.Name]
			if !ok {
				concept := c
				byName[c.Name] = &concept
				order = append(order, c.Name)
				continue
			}
			if c.Confidence > existing.Confidence {
				existing.Confidence = c.Confidence
				existing.Table = c.Table
				if c.Description != "" {
					existing.Description = c.Description
				}
			}
			for _, syn := range c.Synonyms {
				existing.Synonyms = appendUnique(existing.Synonyms, syn)
			}
			existing.Properties = mergeProperties(existing.Properties, c.Properties)
		}
	}

	sort.Strings(order)
	ontology := &models.Ontology{
		ConnectionID: connectionID,
		DatabaseName: snap.DatabaseName,
		GeneratedAt:  s.now(),
	}
	for _, name := range order {
		ontology.Concepts = append(ontology.Concepts, *byName[name])
	}

	seen := make(map[string]bool)
	for _, p := range payloads {
		for _, r := range p.Relationships {
			key := r.From + "\x00" + r.To
			if seen[key] {
				continue
			}
			seen[key] = true
			ontology.Relationships = append(ontology.Relationships, r)
		}
	}
	sort.Slice(ontology.Relationships, func(i, j int) bool {
		if ontology.Relationships[i].From != ontology.Relationships[j].From {
			return ontology.Relationships[i].From < ontology.Relationships[j].From
		}
		return ontology.Relationships[i].To < ontology.Relationships[j].To
	})
	return ontology
}

// mergeProperties unions by property name, keeping the higher confidence.
func mergeProperties(existing, incoming []models.OntologyProperty) []models.OntologyProperty {
	for _, p := range incoming {
		found := false
		for i := range existing {
			if existing[i].Name == p.Name {
				found = true
				if p.Confidence > existing[i].Confidence {
					existing[i] = p
				}
				break
			}
		}
		if !found {
			existing = append(existing, p)
		}
	}
	return existing
}

// export writes the configured artifacts with a shared timestamped base
// name and records their paths for the connection.
func (s *OntologyService) export(o *models.Ontology) error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return err
	}

	base := fmt.Sprintf("%s_ontology_%s", o.ConnectionID, s.now().Format("20060102_150405"))

	var paths []string
	if s.exportFormat != "owl" {
		yamlBytes, err := yaml.Marshal(o)
		if err != nil {
			return err
		}
		yamlPath := filepath.Join(s.outputDir, base+".yml")
		if err := os.WriteFile(yamlPath, yamlBytes, 0o644); err != nil {
			return err
		}
		paths = append(paths, yamlPath)
	}

	if s.exportFormat != "yml" {
		owlBytes, err := marshalOWL(o)
		if err != nil {
			return err
		}
		owlPath := filepath.Join(s.outputDir, base+".owl")
		if err := os.WriteFile(owlPath, owlBytes, 0o644); err != nil {
			return err
		}
		paths = append(paths, owlPath)
	}

	s.artifactsMu.Lock()
	s.artifacts[o.ConnectionID] = paths
	s.artifactsMu.Unlock()

	s.logger.Info("ontology exported", zap.Strings("files", paths))
	return nil
}

// OWL serialization. Concepts become classes, properties become datatype
// properties annotated with their backing column, relationships become
// object properties.

type owlResource struct {
	Resource string `xml:"rdf:resource,attr"`
}

type owlClass struct {
	XMLName xml.Name `xml:"owl:Class"`
	About   string   `xml:"rdf:about,attr"`
	Label   string   `xml:"rdfs:label"`
	Comment string   `xml:"rdfs:comment,omitempty"`
	Table   string   `xml:"mapsToTable"`
}

type owlDatatypeProperty struct {
	XMLName xml.Name    `xml:"owl:DatatypeProperty"`
	About   string      `xml:"rdf:about,attr"`
	Domain  owlResource `xml:"rdfs:domain"`
	Range   owlResource `xml:"rdfs:range"`
	Column  string      `xml:"mapsToColumn"`
}

type owlObjectProperty struct {
	XMLName xml.Name    `xml:"owl:ObjectProperty"`
	About   string      `xml:"rdf:about,attr"`
	Domain  owlResource `xml:"rdfs:domain"`
	Range   owlResource `xml:"rdfs:range"`
	Label   string      `xml:"rdfs:label,omitempty"`
}

type owlDocument struct {
	XMLName   xml.Name `xml:"rdf:RDF"`
	XMLNSRDF  string   `xml:"xmlns:rdf,attr"`
	XMLNSRDFS string   `xml:"xmlns:rdfs,attr"`
	XMLNSOWL  string   `xml:"xmlns:owl,attr"`
	XMLNSXSD  string   `xml:"xmlns:xsd,attr"`

	Classes            []owlClass
	DatatypeProperties []owlDatatypeProperty
	ObjectProperties   []owlObjectProperty
}

func marshalOWL(o *models.Ontology) ([]byte, error) {
	doc := owlDocument{
		XMLNSRDF:  "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
		XMLNSRDFS: "http://www.w3.org/2000/01/rdf-schema#",
		XMLNSOWL:  "http://www.w3.org/2002/07/owl#",
		XMLNSXSD:  xsdNS,
	}

	for _, c := range o.Concepts {
		iri := "#" + owlLocalName(c.Name)
		doc.Classes = append(doc.Classes, owlClass{
			About:   iri,
			Label:   c.Name,
			Comment: c.Description,
			Table:   c.Table,
		})
		for _, p := range c.Properties {
			doc.DatatypeProperties = append(doc.DatatypeProperties, owlDatatypeProperty{
				About:  iri + "_" + owlLocalName(p.Name),
				Domain: owlResource{Resource: iri},
				Range:  owlResource{Resource: xsdType(p.DataType)},
				Column: p.Column,
			})
		}
	}
	for _, r := range o.Relationships {
		doc.ObjectProperties = append(doc.ObjectProperties, owlObjectProperty{
			About:  "#" + owlLocalName(r.From) + "_" + owlLocalName(r.To),
			Domain: owlResource{Resource: "#" + owlLocalName(r.From)},
			Range:  owlResource{Resource: "#" + owlLocalName(r.To)},
			Label:  r.Label,
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

const xsdNS = "http://www.w3.org/2001/XMLSchema#"

// xsdType maps a database column type to the XML Schema datatype IRI used
// as the property's range. Unrecognized types fall back to xsd:string.
func xsdType(dbType string) string {
	t := strings.ToLower(dbType)
	switch {
	case strings.Contains(t, "int") || strings.Contains(t, "serial"):
		return xsdNS + "integer"
	case strings.Contains(t, "bool"):
		return xsdNS + "boolean"
	case strings.Contains(t, "float") || strings.Contains(t, "double") || strings.Contains(t, "real"):
		return xsdNS + "double"
	case strings.Contains(t, "numeric") || strings.Contains(t, "decimal") || strings.Contains(t, "money"):
		return xsdNS + "decimal"
	case strings.Contains(t, "timestamp") || strings.Contains(t, "datetime"):
		return xsdNS + "dateTime"
	case strings.Contains(t, "date"):
		return xsdNS + "date"
	case strings.Contains(t, "time"):
		return xsdNS + "time"
	default:
		return xsdNS + "string"
	}
}

func owlLocalName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		case r == ' ' || r == '-' || r == '.':
			return '_'
		default:
			return -1
		}
	}, name)
}
