package platform

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/fieldops/fieldsync/internal/errors"
	"github.com/fieldops/fieldsync/internal/models"
)

// FieldKind is the projection column type a payload field is coerced to
type FieldKind string

const (
	FieldText      FieldKind = "text"
	FieldNumeric   FieldKind = "numeric"
	FieldTimestamp FieldKind = "timestamp"
)

// FieldSpec maps one payload key to one typed projection column
type FieldSpec struct {
	Column  string
	JSONKey string
	Kind    FieldKind
}

// Descriptor describes one synchronized entity type. Adding an entity type
// to the engine is adding a Descriptor to the registry; nothing else is
// duplicated per type.
type Descriptor struct {
	Name     string
	Endpoint string
	PageSize int
	Table    string
	Fields   []FieldSpec
}

// Columns returns the projection column names in declaration order
func (d *Descriptor) Columns() []string {
	cols := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		cols[i] = f.Column
	}
	return cols
}

// MapRecord normalizes one raw external object through the descriptor's
// field specs. The external id and modification timestamp are required;
// projection fields are nullable.
func (d *Descriptor) MapRecord(raw json.RawMessage) (*models.NormalizedRecord, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("malformed %s payload", d.Name), err)
	}

	externalID, err := coerceID(obj["id"])
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("%s record missing external id", d.Name), err)
	}

	modifiedAt, _ := coerceTime(obj["modifiedAt"])

	fields := make([]interface{}, len(d.Fields))
	for i, spec := range d.Fields {
		val, ok := obj[spec.JSONKey]
		if !ok || val == nil {
			fields[i] = nil
			continue
		}
		coerced, err := coerceField(val, spec.Kind)
		if err != nil {
			return nil, errors.NewValidationError(
				fmt.Sprintf("%s record %s: field %q", d.Name, externalID, spec.JSONKey), err)
		}
		fields[i] = coerced
	}

	return &models.NormalizedRecord{
		ExternalID: externalID,
		Fields:     fields,
		Payload:    raw,
		ModifiedAt: modifiedAt,
	}, nil
}

func coerceID(v interface{}) (string, error) {
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", fmt.Errorf("empty id")
		}
		return id, nil
	case float64:
		return strconv.FormatInt(int64(id), 10), nil
	default:
		return "", fmt.Errorf("unsupported id type %T", v)
	}
}

func coerceTime(v interface{}) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("not a timestamp string")
	}
	return time.Parse(time.RFC3339, s)
}

func coerceField(v interface{}, kind FieldKind) (interface{}, error) {
	switch kind {
	case FieldText:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil
	case FieldNumeric:
		switch n := v.(type) {
		case float64:
			return n, nil
		case string:
			return strconv.ParseFloat(n, 64)
		default:
			return nil, fmt.Errorf("cannot coerce %T to numeric", v)
		}
	case FieldTimestamp:
		t, err := coerceTime(v)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown field kind %q", kind)
	}
}

// Registry holds the entity descriptors the engine knows how to sync
type Registry struct {
	descriptors map[string]*Descriptor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]*Descriptor)}
}

// Register adds a descriptor, applying the default page size if unset
func (r *Registry) Register(d *Descriptor) error {
	if d.Name == "" || d.Endpoint == "" || d.Table == "" {
		return errors.NewValidationError("descriptor requires name, endpoint and table", nil)
	}
	if _, exists := r.descriptors[d.Name]; exists {
		return errors.NewValidationError(fmt.Sprintf("entity %q already registered", d.Name), nil)
	}
	if d.PageSize <= 0 {
		d.PageSize = 100
	}
	r.descriptors[d.Name] = d
	return nil
}

// Get returns the descriptor for an entity name
func (r *Registry) Get(name string) (*Descriptor, error) {
	d, ok := r.descriptors[name]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("unknown entity type %q", name), nil)
	}
	return d, nil
}

// Names returns the registered entity names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns the registry with the standard entity types
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range []*Descriptor{
		{
			Name:     "customers",
			Endpoint: "/customers",
			Table:    "raw_customers",
			Fields: []FieldSpec{
				{Column: "name", JSONKey: "name", Kind: FieldText},
				{Column: "email", JSONKey: "email", Kind: FieldText},
				{Column: "phone", JSONKey: "phone", Kind: FieldText},
				{Column: "modified_at", JSONKey: "modifiedAt", Kind: FieldTimestamp},
			},
		},
		{
			Name:     "jobs",
			Endpoint: "/jobs",
			Table:    "raw_jobs",
			Fields: []FieldSpec{
				{Column: "customer_external_id", JSONKey: "customerId", Kind: FieldText},
				{Column: "job_status", JSONKey: "status", Kind: FieldText},
				{Column: "scheduled_at", JSONKey: "scheduledAt", Kind: FieldTimestamp},
				{Column: "total_amount", JSONKey: "total", Kind: FieldNumeric},
				{Column: "modified_at", JSONKey: "modifiedAt", Kind: FieldTimestamp},
			},
		},
		{
			Name:     "invoices",
			Endpoint: "/invoices",
			Table:    "raw_invoices",
			Fields: []FieldSpec{
				{Column: "job_external_id", JSONKey: "jobId", Kind: FieldText},
				{Column: "invoice_status", JSONKey: "status", Kind: FieldText},
				{Column: "total_amount", JSONKey: "total", Kind: FieldNumeric},
				{Column: "due_at", JSONKey: "dueAt", Kind: FieldTimestamp},
				{Column: "modified_at", JSONKey: "modifiedAt", Kind: FieldTimestamp},
			},
		},
		{
			Name:     "estimates",
			Endpoint: "/estimates",
			Table:    "raw_estimates",
			Fields: []FieldSpec{
				{Column: "job_external_id", JSONKey: "jobId", Kind: FieldText},
				{Column: "estimate_status", JSONKey: "status", Kind: FieldText},
				{Column: "total_amount", JSONKey: "total", Kind: FieldNumeric},
				{Column: "modified_at", JSONKey: "modifiedAt", Kind: FieldTimestamp},
			},
		},
		{
			Name:     "catalog_items",
			Endpoint: "/catalog/items",
			Table:    "raw_catalog_items",
			Fields: []FieldSpec{
				{Column: "name", JSONKey: "name", Kind: FieldText},
				{Column: "sku", JSONKey: "sku", Kind: FieldText},
				{Column: "unit_price", JSONKey: "unitPrice", Kind: FieldNumeric},
				{Column: "modified_at", JSONKey: "modifiedAt", Kind: FieldTimestamp},
			},
		},
	} {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}
