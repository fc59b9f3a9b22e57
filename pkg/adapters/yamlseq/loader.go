// Package yamlseq loads sequence definitions from YAML documents. Every
// document is validated against a schema before the tree is built, so the
// executor never sees a malformed definition.
package yamlseq

import (
	"context"
	"fmt"
	"io"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

// document mirrors the on-disk sequence definition.
type document struct {
	Name           string                    `yaml:"name"`
	SampleType     string                    `yaml:"sample_type"`
	SamplePosition string                    `yaml:"sample_position"`
	Comment        string                    `yaml:"comment"`
	Defaults       map[string]map[string]any `yaml:"defaults"`
	Contacts       []contactDoc              `yaml:"contacts"`
}

type contactDoc struct {
	Name         string           `yaml:"name"`
	ContactID    string           `yaml:"contact_id"`
	Enabled      *bool            `yaml:"enabled"`
	Position     []float64        `yaml:"position"`
	Measurements []measurementDoc `yaml:"measurements"`
}

type measurementDoc struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Enabled    *bool          `yaml:"enabled"`
	Tags       []string       `yaml:"tags"`
	Parameters map[string]any `yaml:"parameters"`
}

// documentSchema validates the decoded document before the tree is built.
var documentSchema = buildSchema()

func buildSchema() *openapi3.Schema {
	measurement := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema().WithMinLength(1)).
		WithProperty("type", openapi3.NewStringSchema().WithMinLength(1)).
		WithProperty("enabled", openapi3.NewBoolSchema()).
		WithProperty("tags", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("parameters", openapi3.NewObjectSchema().WithAnyAdditionalProperties())
	measurement.Required = []string{"name", "type"}

	contact := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema().WithMinLength(1)).
		WithProperty("contact_id", openapi3.NewStringSchema()).
		WithProperty("enabled", openapi3.NewBoolSchema()).
		WithProperty("position", openapi3.NewArraySchema().
			WithItems(openapi3.NewFloat64Schema()).
			WithMinItems(3).
			WithMaxItems(3)).
		WithProperty("measurements", openapi3.NewArraySchema().WithItems(measurement))
	contact.Required = []string{"name"}

	doc := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema().WithMinLength(1)).
		WithProperty("sample_type", openapi3.NewStringSchema()).
		WithProperty("sample_position", openapi3.NewStringSchema()).
		WithProperty("comment", openapi3.NewStringSchema()).
		WithProperty("defaults", openapi3.NewObjectSchema().WithAnyAdditionalProperties()).
		WithProperty("contacts", openapi3.NewArraySchema().WithItems(contact).WithMinItems(1))
	doc.Required = []string{"name", "contacts"}
	return doc
}

// Loader implements ports.SequenceLoader for YAML documents.
type Loader struct{}

// New returns a YAML sequence loader.
func New() *Loader { return &Loader{} }

var _ ports.SequenceLoader = (*Loader)(nil)

// Load decodes, validates and builds the sequence tree. The returned root
// is a sample node.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*domain.Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading sequence definition: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing sequence definition: %w", err)
	}
	if err := documentSchema.VisitJSON(raw); err != nil {
		return nil, fmt.Errorf("invalid sequence definition: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing sequence definition: %w", err)
	}
	return buildTree(doc)
}

func buildTree(doc document) (*domain.Node, error) {
	sample := domain.NewNode(domain.KindSample, doc.Name)
	sample.SampleType = doc.SampleType
	sample.SamplePosition = doc.SamplePosition
	sample.Comment = doc.Comment

	for _, c := range doc.Contacts {
		contact := domain.NewNode(domain.KindContact, c.Name)
		contact.ContactID = c.ContactID
		contact.Enabled = enabled(c.Enabled)
		if len(c.Position) == 3 {
			contact.Pos = domain.NewPosition(c.Position[0], c.Position[1], c.Position[2])
		}
		sample.AddChild(contact)

		for _, m := range c.Measurements {
			node := domain.NewNode(domain.KindMeasurement, m.Name)
			node.MeasurementType = m.Type
			node.MeasurementID = fmt.Sprintf("%s/%s", c.Name, m.Name)
			node.Enabled = enabled(m.Enabled)
			node.Tags = m.Tags
			node.Parameters = m.Parameters
			if defaults, ok := doc.Defaults[m.Type]; ok {
				node.DefaultParameters = defaults
			}
			contact.AddChild(node)
		}
	}
	return sample, nil
}

// enabled defaults an absent flag to true.
func enabled(v *bool) bool {
	return v == nil || *v
}
