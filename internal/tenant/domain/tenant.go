package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Tenant is one customer organization, isolated in its own Postgres schema.
type Tenant struct {
	ID                 string
	Name               string
	Email              string
	Phone              string // optional
	ProfessionalNumber string // optional; regulated professions
	SchemaName         string
	Slug               string
	Status             TenantStatus
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// PublicSchema is the shared schema name; never a tenant.
const PublicSchema = "public"

var schemaNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Validate validates the tenant for persistence. Returns an error describing the first validation failure.
func (t *Tenant) Validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	if t.Email == "" {
		return errors.New("email is required")
	}
	if err := ValidateSchemaName(t.SchemaName); err != nil {
		return err
	}
	if t.Status == "" {
		t.Status = TenantStatusActive
	}
	return nil
}

// ValidateSchemaName checks a candidate Postgres schema name: lowercase
// identifier, not the public schema, not a pg_ reserved prefix.
func ValidateSchemaName(s string) error {
	if s == "" {
		return errors.New("schema name is required")
	}
	if s == PublicSchema {
		return errors.New("schema name must not be public")
	}
	if strings.HasPrefix(s, "pg_") {
		return fmt.Errorf("schema name %q uses a reserved prefix", s)
	}
	if !schemaNameRe.MatchString(s) {
		return fmt.Errorf("schema name %q must match %s", s, schemaNameRe.String())
	}
	return nil
}

// Domain maps a hostname to a tenant. A tenant has at most one primary domain.
type Domain struct {
	ID        string
	TenantID  string
	Hostname  string
	IsPrimary bool
	CreatedAt time.Time
}
