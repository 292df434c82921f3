package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type ChangeType string

const (
	ChangeTypeCompanyInfo   ChangeType = "company_info"
	ChangeTypeCategories    ChangeType = "categories"
	ChangeTypeBanner        ChangeType = "banner"
	ChangeTypeLogo          ChangeType = "logo"
	ChangeTypeProduct       ChangeType = "product"
	ChangeTypeMedia         ChangeType = "media"
	ChangeTypeCTAConfig     ChangeType = "cta_config"
	ChangeTypeAccessRequest ChangeType = "access_request"
)

var AllChangeTypes = []ChangeType{
	ChangeTypeCompanyInfo,
	ChangeTypeCategories,
	ChangeTypeBanner,
	ChangeTypeLogo,
	ChangeTypeProduct,
	ChangeTypeMedia,
	ChangeTypeCTAConfig,
	ChangeTypeAccessRequest,
}

func IsValidChangeType(t ChangeType) bool {
	for _, ct := range AllChangeTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// Category set actions
const (
	CategoryActionAdd    = "add"
	CategoryActionRemove = "remove"
)

// Change is one typed variant per change kind. The set is closed.
type Change interface {
	Type() ChangeType
	isChange()
}

type CompanyInfoChange struct {
	Attributes     map[string]any `json:"attributes" validate:"required,min=1"`
	PreviousValues map[string]any `json:"previous_values,omitempty"`
}

type CategoriesChange struct {
	Action      string  `json:"action" validate:"required,oneof=add remove"`
	CategoryIDs []int64 `json:"category_ids" validate:"required,min=1,dive,gt=0"`
}

// BannerChange and LogoChange reference a single uploaded blob.
type BannerChange struct {
	SignedID string `json:"signed_id"`
}

type LogoChange struct {
	SignedID string `json:"signed_id"`
}

type ProductChange struct {
	ProductID  *uuid.UUID     `json:"product_id,omitempty"`
	Attributes map[string]any `json:"attributes" validate:"required,min=1"`
}

type MediaChange struct {
	SignedIDs []string `json:"signed_ids" validate:"required,min=1,dive,required"`
}

type CTAConfigChange struct {
	Label   *string `json:"cta_label,omitempty" validate:"required_without_all=URL Style Enabled"`
	URL     *string `json:"cta_url,omitempty"`
	Style   *string `json:"cta_style,omitempty"`
	Enabled *bool   `json:"cta_enabled,omitempty"`
}

// AccessRequestChange carries no data: the submitter asks to join the company.
type AccessRequestChange struct{}

func (CompanyInfoChange) Type() ChangeType   { return ChangeTypeCompanyInfo }
func (CategoriesChange) Type() ChangeType    { return ChangeTypeCategories }
func (BannerChange) Type() ChangeType        { return ChangeTypeBanner }
func (LogoChange) Type() ChangeType          { return ChangeTypeLogo }
func (ProductChange) Type() ChangeType       { return ChangeTypeProduct }
func (MediaChange) Type() ChangeType         { return ChangeTypeMedia }
func (CTAConfigChange) Type() ChangeType     { return ChangeTypeCTAConfig }
func (AccessRequestChange) Type() ChangeType { return ChangeTypeAccessRequest }

func (CompanyInfoChange) isChange()   {}
func (CategoriesChange) isChange()    {}
func (BannerChange) isChange()        {}
func (LogoChange) isChange()          {}
func (ProductChange) isChange()       {}
func (MediaChange) isChange()         {}
func (CTAConfigChange) isChange()     {}
func (AccessRequestChange) isChange() {}

// signedAsset accepts both {signed_id} and {signed_ids: [one]}.
type signedAsset struct {
	SignedID  string   `json:"signed_id"`
	SignedIDs []string `json:"signed_ids"`
}

func (a signedAsset) single() (string, error) {
	switch {
	case a.SignedID != "" && len(a.SignedIDs) > 0:
		return "", &ValidationError{Field: "signed_id", Message: "use either signed_id or signed_ids"}
	case a.SignedID != "":
		return a.SignedID, nil
	case len(a.SignedIDs) == 1 && a.SignedIDs[0] != "":
		return a.SignedIDs[0], nil
	case len(a.SignedIDs) > 1:
		return "", &ValidationError{Field: "signed_ids", Message: "exactly one blob expected"}
	default:
		return "", &ValidationError{Field: "signed_id", Message: "is required"}
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that payload has the shape the change type expects.
func Validate(t ChangeType, payload json.RawMessage) error {
	_, err := DecodeChange(t, payload)
	return err
}

// DecodeChange strictly decodes payload into the variant for t.
// Only key presence is checked here; attribute values are validated
// by the target entity when the change is applied.
func DecodeChange(t ChangeType, payload json.RawMessage) (Change, error) {
	switch t {
	case ChangeTypeCompanyInfo:
		var c CompanyInfoChange
		if err := decodeAndValidate(payload, &c); err != nil {
			return nil, err
		}
		if err := checkKeys("attributes", c.Attributes, EditableCompanyAttributes); err != nil {
			return nil, err
		}
		return c, nil
	case ChangeTypeCategories:
		var c CategoriesChange
		if err := decodeAndValidate(payload, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ChangeTypeBanner:
		id, err := decodeSignedAsset(payload)
		if err != nil {
			return nil, err
		}
		return BannerChange{SignedID: id}, nil
	case ChangeTypeLogo:
		id, err := decodeSignedAsset(payload)
		if err != nil {
			return nil, err
		}
		return LogoChange{SignedID: id}, nil
	case ChangeTypeProduct:
		var c ProductChange
		if err := decodeAndValidate(payload, &c); err != nil {
			return nil, err
		}
		if err := checkKeys("attributes", c.Attributes, EditableProductAttributes); err != nil {
			return nil, err
		}
		return c, nil
	case ChangeTypeMedia:
		var c MediaChange
		if err := decodeAndValidate(payload, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ChangeTypeCTAConfig:
		var c CTAConfigChange
		if err := decodeAndValidate(payload, &c); err != nil {
			return nil, err
		}
		return c, nil
	case ChangeTypeAccessRequest:
		var c AccessRequestChange
		if err := decodeStrict(payload, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, &ValidationError{Field: "change_type", Message: fmt.Sprintf("unknown change type %q", t)}
	}
}

// EncodeChange is the inverse of DecodeChange for building records in code.
func EncodeChange(c Change) (json.RawMessage, error) {
	return json.Marshal(c)
}

func decodeSignedAsset(payload json.RawMessage) (string, error) {
	var a signedAsset
	if err := decodeStrict(payload, &a); err != nil {
		return "", err
	}
	return a.single()
}

func decodeAndValidate(payload json.RawMessage, dst any) error {
	if err := decodeStrict(payload, dst); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fieldPath(fe), Message: fmt.Sprintf("failed %q check", fe.Tag())}
		}
		return &ValidationError{Message: err.Error()}
	}
	return nil
}

func decodeStrict(payload json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &ValidationError{Field: "payload", Message: err.Error()}
	}
	return nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func checkKeys(field string, attrs map[string]any, allowed map[string]struct{}) error {
	var unknown []string
	for k := range attrs {
		if _, ok := allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return &ValidationError{Field: field, Message: "unknown attributes: " + strings.Join(unknown, ", ")}
}
