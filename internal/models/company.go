package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Attachment slots and collections on a company
const (
	AttachmentBanner = "banner"
	AttachmentLogo   = "logo"
	AttachmentMedia  = "media"
)

// EditableCompanyAttributes lists the keys a company_info change may touch.
var EditableCompanyAttributes = map[string]struct{}{
	"name":           {},
	"description":    {},
	"website":        {},
	"email":          {},
	"phone":          {},
	"address":        {},
	"city":           {},
	"country":        {},
	"founded_year":   {},
	"employee_count": {},
}

var EditableProductAttributes = map[string]struct{}{
	"name":        {},
	"description": {},
	"website":     {},
}

type Company struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"`
	Website       *string   `json:"website,omitempty"`
	Email         *string   `json:"email,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	Address       *string   `json:"address,omitempty"`
	City          *string   `json:"city,omitempty"`
	Country       *string   `json:"country,omitempty"`
	FoundedYear   *int      `json:"founded_year,omitempty"`
	EmployeeCount *int      `json:"employee_count,omitempty"`
	CTA           CTAConfig `json:"cta"`
	CategoryIDs   []int64   `json:"category_ids"`
	LockVersion   int       `json:"lock_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CTAConfig struct {
	Label   string `json:"cta_label"`
	URL     string `json:"cta_url"`
	Style   string `json:"cta_style"`
	Enabled bool   `json:"cta_enabled"`
}

// Merge overwrites the fields present in the change.
func (c *CTAConfig) Merge(ch CTAConfigChange) {
	if ch.Label != nil {
		c.Label = *ch.Label
	}
	if ch.URL != nil {
		c.URL = *ch.URL
	}
	if ch.Style != nil {
		c.Style = *ch.Style
	}
	if ch.Enabled != nil {
		c.Enabled = *ch.Enabled
	}
}

// Attributes returns the editable attributes in their JSON form.
func (c *Company) Attributes() map[string]any {
	return map[string]any{
		"name":           c.Name,
		"description":    c.Description,
		"website":        c.Website,
		"email":          c.Email,
		"phone":          c.Phone,
		"address":        c.Address,
		"city":           c.City,
		"country":        c.Country,
		"founded_year":   c.FoundedYear,
		"employee_count": c.EmployeeCount,
	}
}

// ApplyAttributes overwrites the listed attributes. Values come from decoded
// JSON, so numbers arrive as float64. Nothing is changed if any value is invalid.
func (c *Company) ApplyAttributes(attrs map[string]any) error {
	next := *c
	for key, value := range attrs {
		var err error
		switch key {
		case "name":
			var name *string
			name, err = optionalString(key, value)
			if err == nil && (name == nil || *name == "") {
				err = fmt.Errorf("name must not be blank")
			}
			if err == nil {
				next.Name = *name
			}
		case "description":
			next.Description, err = optionalString(key, value)
		case "website":
			next.Website, err = optionalString(key, value)
		case "email":
			next.Email, err = optionalString(key, value)
		case "phone":
			next.Phone, err = optionalString(key, value)
		case "address":
			next.Address, err = optionalString(key, value)
		case "city":
			next.City, err = optionalString(key, value)
		case "country":
			next.Country, err = optionalString(key, value)
		case "founded_year":
			next.FoundedYear, err = optionalInt(key, value)
		case "employee_count":
			next.EmployeeCount, err = optionalInt(key, value)
			if err == nil && next.EmployeeCount != nil && *next.EmployeeCount < 0 {
				err = fmt.Errorf("employee_count must not be negative")
			}
		default:
			err = fmt.Errorf("attribute %q is not editable", key)
		}
		if err != nil {
			return err
		}
	}
	*c = next
	return nil
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID          uuid.UUID `json:"id"`
	CompanyID   uuid.UUID `json:"company_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Website     *string   `json:"website,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *Product) ApplyAttributes(attrs map[string]any) error {
	next := *p
	for key, value := range attrs {
		var err error
		switch key {
		case "name":
			var name *string
			name, err = optionalString(key, value)
			if err == nil && (name == nil || *name == "") {
				err = fmt.Errorf("name must not be blank")
			}
			if err == nil {
				next.Name = *name
			}
		case "description":
			next.Description, err = optionalString(key, value)
		case "website":
			next.Website, err = optionalString(key, value)
		default:
			err = fmt.Errorf("attribute %q is not editable", key)
		}
		if err != nil {
			return err
		}
	}
	if next.Name == "" {
		return fmt.Errorf("name must not be blank")
	}
	*p = next
	return nil
}

// Blob is an uploaded binary asset, resolved from a signed id.
type Blob struct {
	ID          uuid.UUID `json:"id"`
	Key         string    `json:"key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	ByteSize    int64     `json:"byte_size"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"created_at"`
}

type Attachment struct {
	ID        uuid.UUID `json:"id"`
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"name"` // banner / logo / media
	BlobID    uuid.UUID `json:"blob_id"`
	CreatedAt time.Time `json:"created_at"`
}

func optionalString(key string, value any) (*string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	default:
		return nil, fmt.Errorf("%s must be a string", key)
	}
}

func optionalInt(key string, value any) (*int, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case int:
		return &v, nil
	case int64:
		n := int(v)
		return &n, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%s must be a whole number", key)
		}
		n := int(v)
		return &n, nil
	default:
		return nil, fmt.Errorf("%s must be a number", key)
	}
}
