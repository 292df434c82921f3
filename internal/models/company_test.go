package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestCompanyApplyAttributes(t *testing.T) {
	c := &Company{Name: "Old", City: strPtr("Riga")}

	err := c.ApplyAttributes(map[string]any{
		"name":           "Acme",
		"city":           nil,
		"founded_year":   float64(1999),
		"employee_count": float64(12),
	})
	require.NoError(t, err)

	assert.Equal(t, "Acme", c.Name)
	assert.Nil(t, c.City)
	require.NotNil(t, c.FoundedYear)
	assert.Equal(t, 1999, *c.FoundedYear)
	assert.Equal(t, 12, *c.EmployeeCount)
}

func TestCompanyApplyAttributesIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]any
	}{
		{"blank name", map[string]any{"website": "https://acme.test", "name": ""}},
		{"null name", map[string]any{"name": nil}},
		{"fractional year", map[string]any{"website": "https://acme.test", "founded_year": 1999.5}},
		{"negative employees", map[string]any{"employee_count": float64(-1)}},
		{"wrong type", map[string]any{"city": 42}},
		{"not editable", map[string]any{"lock_version": 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Company{Name: "Old"}
			before := *c
			require.Error(t, c.ApplyAttributes(tt.attrs))
			assert.Equal(t, before, *c)
		})
	}
}

func TestCTAConfigMerge(t *testing.T) {
	cta := CTAConfig{Label: "Contact", URL: "https://old.test", Style: "primary", Enabled: true}
	disabled := false
	cta.Merge(CTAConfigChange{URL: strPtr("https://new.test"), Enabled: &disabled})

	assert.Equal(t, CTAConfig{Label: "Contact", URL: "https://new.test", Style: "primary", Enabled: false}, cta)
}

func TestProductApplyAttributesRequiresName(t *testing.T) {
	p := &Product{}
	require.Error(t, p.ApplyAttributes(map[string]any{"description": "no name"}))

	require.NoError(t, p.ApplyAttributes(map[string]any{"name": "Widget", "website": "https://w.test"}))
	assert.Equal(t, "Widget", p.Name)
	assert.Equal(t, "https://w.test", *p.Website)
}
