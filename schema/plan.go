// Package schema defines the bootstrap plan: the database, application user,
// collections and indexes a bootstrap run establishes.
package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed default_plan.yaml
var defaultPlanYAML []byte

//go:embed plan.schema.json
var planSchemaJSON []byte

var validate = validator.New()

// Characters MongoDB rejects in database names
const invalidDatabaseChars = "/\\. \"$*<>:|?"

// ErrInvalidPlan is returned when a plan document fails validation
var ErrInvalidPlan = errors.New("invalid bootstrap plan")

// RoleGrant binds a role to the database it applies to. The application
// credential is limited to read or read/write access.
type RoleGrant struct {
	Role string `yaml:"role" json:"role" validate:"required,oneof=read readWrite"`
	DB   string `yaml:"db" json:"db" validate:"required"`
}

// User is the application credential. The secret is resolved separately and
// never appears in a plan.
type User struct {
	Username string      `yaml:"username" json:"username" validate:"required"`
	Roles    []RoleGrant `yaml:"roles" json:"roles" validate:"min=1,dive"`
}

// Collection is an explicitly created, initially empty collection
type Collection struct {
	Name string `yaml:"name" json:"name" validate:"required,excludes=$"`
}

// Index is a single-field ascending index
type Index struct {
	Collection string `yaml:"collection" json:"collection" validate:"required"`
	Field      string `yaml:"field" json:"field" validate:"required"`
	Unique     bool   `yaml:"unique" json:"unique"`
	Name       string `yaml:"name,omitempty" json:"name,omitempty"`
}

// ResolvedName returns the explicit name or the server default "<field>_1"
func (i Index) ResolvedName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Field + "_1"
}

// Plan is the full administrative layout of one database
type Plan struct {
	Database    string       `yaml:"database" json:"database" validate:"required,max=63"`
	User        User         `yaml:"user" json:"user"`
	Collections []Collection `yaml:"collections" json:"collections" validate:"dive"`
	Indexes     []Index      `yaml:"indexes" json:"indexes" validate:"dive"`
}

// Default returns the elise_db layout.
func Default() Plan {
	p, err := Parse(defaultPlanYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default plan is invalid: %v", err))
	}
	return p
}

// Load reads a plan from path, or returns Default when path is empty.
// JSON documents are accepted as well as YAML.
func Load(path string) (Plan, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read plan file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return Plan{}, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// Parse validates data against the plan JSON schema, decodes it and checks
// the cross-field invariants.
func Parse(data []byte) (Plan, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if raw == nil {
		return Plan{}, fmt.Errorf("%w: empty document", ErrInvalidPlan)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(planSchemaJSON),
		gojsonschema.NewGoLoader(raw),
	)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to validate plan against schema: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Plan{}, fmt.Errorf("%w: %s", ErrInvalidPlan, strings.Join(msgs, "; "))
	}

	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Validate checks struct constraints and the invariants that span fields:
// role grants are scoped to the plan database, collection names are unique,
// and every index targets a planned collection.
func (p Plan) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if strings.ContainsAny(p.Database, invalidDatabaseChars) {
		return fmt.Errorf("%w: database name %q contains one of %q", ErrInvalidPlan, p.Database, invalidDatabaseChars)
	}

	for _, r := range p.User.Roles {
		if r.DB != p.Database {
			return fmt.Errorf("%w: role %q is granted on %q, must be scoped to %q",
				ErrInvalidPlan, r.Role, r.DB, p.Database)
		}
	}

	planned := make(map[string]bool, len(p.Collections))
	for _, c := range p.Collections {
		if planned[c.Name] {
			return fmt.Errorf("%w: collection %q listed twice", ErrInvalidPlan, c.Name)
		}
		planned[c.Name] = true
	}

	seen := make(map[string]bool, len(p.Indexes))
	for _, idx := range p.Indexes {
		if !planned[idx.Collection] {
			return fmt.Errorf("%w: index on %q targets unplanned collection %q",
				ErrInvalidPlan, idx.Field, idx.Collection)
		}
		key := idx.Collection + "." + idx.ResolvedName()
		if seen[key] {
			return fmt.Errorf("%w: index %s listed twice", ErrInvalidPlan, key)
		}
		seen[key] = true
	}

	return nil
}

// WithDatabase returns a copy of the plan targeting name. Role grants scoped
// to the old database move with it.
func (p Plan) WithDatabase(name string) (Plan, error) {
	out := Plan{
		Database:    name,
		User:        User{Username: p.User.Username, Roles: make([]RoleGrant, len(p.User.Roles))},
		Collections: append([]Collection(nil), p.Collections...),
		Indexes:     append([]Index(nil), p.Indexes...),
	}
	for i, r := range p.User.Roles {
		if r.DB == p.Database {
			r.DB = name
		}
		out.User.Roles[i] = r
	}
	if err := out.Validate(); err != nil {
		return Plan{}, err
	}
	return out, nil
}

// YAML renders the plan as a YAML document
func (p Plan) YAML() ([]byte, error) {
	return yaml.Marshal(p)
}
