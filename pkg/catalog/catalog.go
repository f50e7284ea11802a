// Package catalog loads the externally managed configuration the core
// consumes: the record schema, classification tables, parties, thresholds
// and the obligation catalog.
//
// Loading is the one place where configuration defects are looked for.
// Structural problems (malformed YAML, schema violations, unsupported
// versions) fail the load. Quality problems (unparseable legacy conditions,
// unknown fields, malformed band tables, duplicate ids) are collected as
// diagnostics and degrade safely: an unparseable condition becomes one that
// never matches.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/gatekeeper/pkg/applicability"
	"github.com/Mindburn-Labs/gatekeeper/pkg/canonicalize"
	"github.com/Mindburn-Labs/gatekeeper/pkg/checkpoint"
	"github.com/Mindburn-Labs/gatekeeper/pkg/classification"
	"github.com/Mindburn-Labs/gatekeeper/pkg/condition"
	"github.com/Mindburn-Labs/gatekeeper/pkg/phase"
	"github.com/Mindburn-Labs/gatekeeper/pkg/record"
)

// SupportedVersions is the range of catalog document versions this build
// understands.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

const (
	DefaultValueField  = "value"
	DefaultMarginField = "margin"
)

// Diagnostic codes raised while loading.
const (
	CodeDuplicateID       = "catalog.duplicate_id"
	CodeConflictingWhen   = "catalog.conflicting_condition"
	CodeUnknownPartyLevel = "catalog.unknown_party_level"
	CodeMissingField      = "catalog.missing_field"
	CodeInvalidPhase      = "catalog.invalid_phase"
)

//go:embed catalog.schema.json
var schemaSource string

const schemaURL = "https://gatekeeper.schemas.local/catalog.schema.json"

var documentSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaSource)); err != nil {
		panic(fmt.Sprintf("catalog schema load failed: %v", err))
	}
	return c.MustCompile(schemaURL)
}

// ErrInvalidDocument wraps every structural failure of Load.
var ErrInvalidDocument = errors.New("invalid catalog document")

// Document is the YAML layout of a catalog file.
type Document struct {
	Version     string                    `yaml:"version" json:"version"`
	Name        string                    `yaml:"name,omitempty" json:"name,omitempty"`
	ValueField  string                    `yaml:"value_field,omitempty" json:"value_field,omitempty"`
	MarginField string                    `yaml:"margin_field,omitempty" json:"margin_field,omitempty"`
	Record      RecordDoc                 `yaml:"record" json:"record"`
	ValueBands  classification.Table      `yaml:"value_bands" json:"value_bands"`
	MarginBands classification.Table      `yaml:"margin_bands,omitempty" json:"margin_bands,omitempty"`
	Parties     []applicability.Party     `yaml:"parties,omitempty" json:"parties,omitempty"`
	Thresholds  []applicability.Threshold `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
	Obligations []ObligationDoc           `yaml:"obligations" json:"obligations"`
}

type RecordDoc struct {
	Fields []record.Field `yaml:"fields" json:"fields"`
}

// ObligationDoc is an obligation as written in configuration. It carries
// either a structured condition or a legacy `when` expression.
type ObligationDoc struct {
	checkpoint.Obligation `yaml:",inline"`
	When                  string `yaml:"when,omitempty" json:"when,omitempty"`
}

// Catalog is a loaded, validated configuration snapshot. It is never
// mutated after Load returns and may be shared between goroutines.
type Catalog struct {
	Version     *semver.Version
	Name        string
	ValueField  string
	MarginField string
	Schema      *record.Schema
	ValueBands  classification.Table
	MarginBands classification.Table
	Parties     []applicability.Party
	Thresholds  []applicability.Threshold
	Obligations []checkpoint.Obligation
	Diagnostics []condition.Diagnostic

	fingerprint string
}

// Fingerprint is the hex SHA-256 of the canonical JSON form of the source
// document. Reformatting the YAML does not change it.
func (c *Catalog) Fingerprint() string { return c.fingerprint }

// Obligation looks an obligation up by id.
func (c *Catalog) Obligation(id string) (checkpoint.Obligation, bool) {
	for _, ob := range c.Obligations {
		if ob.ID == id {
			return ob, true
		}
	}
	return checkpoint.Obligation{}, false
}

// Load parses and validates a YAML catalog document.
func Load(data []byte) (*Catalog, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("%w: yaml: %v", ErrInvalidDocument, err)
	}
	if generic == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var inst any
	if err := dec.Decode(&inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := documentSchema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	fingerprint, err := canonicalize.CanonicalHash(inst)
	if err != nil {
		return nil, fmt.Errorf("fingerprint catalog: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	c, err := build(doc)
	if err != nil {
		return nil, err
	}
	c.fingerprint = fingerprint
	return c, nil
}

func build(doc Document) (*Catalog, error) {
	version, err := checkVersion(doc.Version)
	if err != nil {
		return nil, err
	}
	schema, err := record.NewSchema(doc.Record.Fields...)
	if err != nil {
		return nil, fmt.Errorf("%w: record: %v", ErrInvalidDocument, err)
	}

	c := &Catalog{
		Version:     version,
		Name:        doc.Name,
		ValueField:  orDefault(doc.ValueField, DefaultValueField),
		MarginField: orDefault(doc.MarginField, DefaultMarginField),
		Schema:      schema,
		ValueBands:  doc.ValueBands,
		MarginBands: doc.MarginBands,
		Parties:     doc.Parties,
		Thresholds:  doc.Thresholds,
	}
	var col condition.Collector

	c.checkTables(&col)
	c.Obligations = buildObligations(doc.Obligations, schema, &col)

	c.Diagnostics = col.Diagnostics()
	return c, nil
}

func checkVersion(v string) (*semver.Version, error) {
	version, err := semver.NewVersion(v)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q: %v", ErrInvalidDocument, v, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return nil, err
	}
	if !constraint.Check(version) {
		return nil, fmt.Errorf("%w: version %s is outside %s", ErrInvalidDocument, version, SupportedVersions)
	}
	return version, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (c *Catalog) checkTables(sink condition.Sink) {
	for _, d := range c.ValueBands.Validate("value_bands") {
		sink.Report(d)
	}
	if len(c.MarginBands) > 0 {
		for _, d := range c.MarginBands.Validate("margin_bands") {
			sink.Report(d)
		}
	}

	for _, name := range []string{c.ValueField, c.MarginField} {
		if name == c.MarginField && len(c.MarginBands) == 0 {
			continue
		}
		f, ok := c.Schema.Lookup(name)
		if !ok || f.Kind != record.KindNumber {
			sink.Report(condition.Diagnostic{
				Severity: condition.SeverityError,
				Code:     CodeMissingField,
				Subject:  name,
				Message:  fmt.Sprintf("classification field %q must be a declared number field", name),
			})
		}
	}

	seen := map[string]bool{}
	for _, p := range c.Parties {
		if seen[p.ID] {
			sink.Report(duplicate("party", p.ID))
		}
		seen[p.ID] = true
		for _, l := range p.Levels {
			if _, ok := c.ValueBands.Lookup(l); !ok {
				sink.Report(condition.Diagnostic{
					Severity: condition.SeverityWarning,
					Code:     CodeUnknownPartyLevel,
					Subject:  p.ID,
					Message:  fmt.Sprintf("party %q lists level %q which no value band declares", p.ID, l),
				})
			}
		}
	}
	seen = map[string]bool{}
	for _, th := range c.Thresholds {
		if seen[th.ID] {
			sink.Report(duplicate("threshold", th.ID))
		}
		seen[th.ID] = true
	}
}

// buildObligations normalizes legacy `when` text once and validates every
// condition against the record schema. Later duplicates of an id are
// dropped.
func buildObligations(docs []ObligationDoc, schema *record.Schema, sink condition.Sink) []checkpoint.Obligation {
	parser := condition.NewParser(sink)
	out := make([]checkpoint.Obligation, 0, len(docs))
	seen := map[string]bool{}
	for _, d := range docs {
		ob := d.Obligation
		if seen[ob.ID] {
			sink.Report(duplicate("obligation", ob.ID))
			continue
		}
		seen[ob.ID] = true

		if ob.Phase != phase.All && !ob.Phase.Valid() {
			sink.Report(condition.Diagnostic{
				Severity: condition.SeverityError,
				Code:     CodeInvalidPhase,
				Subject:  ob.ID,
				Message:  fmt.Sprintf("obligation %q has no usable phase", ob.ID),
			})
			continue
		}

		if text := strings.TrimSpace(d.When); text != "" {
			if ob.Condition != nil {
				sink.Report(condition.Diagnostic{
					Severity: condition.SeverityWarning,
					Code:     CodeConflictingWhen,
					Subject:  ob.ID,
					Message:  fmt.Sprintf("obligation %q has both condition and when; when is ignored", ob.ID),
				})
			} else if c, err := parser.Parse(text); err == nil {
				ob.Condition = c
			} else {
				ob.Condition = condition.AllOf(condition.Never())
			}
		}

		for _, diag := range condition.Validate(ob.Condition, schema) {
			diag.Message = fmt.Sprintf("obligation %q: %s", ob.ID, diag.Message)
			sink.Report(diag)
		}
		out = append(out, ob)
	}
	return out
}

func duplicate(kind, id string) condition.Diagnostic {
	return condition.Diagnostic{
		Severity: condition.SeverityError,
		Code:     CodeDuplicateID,
		Subject:  id,
		Message:  fmt.Sprintf("%s %q declared more than once", kind, id),
	}
}
