package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"onboard/internal/docstore"
)

func TestNormalizeWorkspaceRowsOrderIndependence(t *testing.T) {
	a := &docstore.Document{Doctype: docstore.DoctypeWorkspace, Name: "CRM", Fields: docstore.Fields{
		"links": []any{
			map[string]any{"type": "Link", "label": "Leads", "link_type": "DocType", "link_to": "Lead"},
			map[string]any{"type": "Link", "label": "Customers", "link_type": "DocType", "link_to": "Customer"},
		},
	}}
	b := &docstore.Document{Doctype: docstore.DoctypeWorkspace, Name: "CRM", Fields: docstore.Fields{
		"links": []any{
			map[string]any{"type": "Link", "label": "Customers", "link_type": "DocType", "link_to": "Customer"},
			map[string]any{"type": "Link", "label": "Leads", "link_type": "DocType", "link_to": "Lead"},
		},
	}}
	an := normalizeForCompare(a)
	bn := normalizeForCompare(b)
	assert.True(t, valuesEqual(an["links"], bn["links"]))
}

func TestNormalizeDropsVolatileFields(t *testing.T) {
	doc := &docstore.Document{Doctype: docstore.DoctypeWorkspace, Name: "Home", Fields: docstore.Fields{
		"content":         `[{"type":"header"}]`,
		"sequence_id":     7,
		"onboarding_list": "[]",
		"label":           "Home",
	}}
	n := normalizeForCompare(doc)
	assert.NotContains(t, n, "content")
	assert.NotContains(t, n, "sequence_id")
	assert.NotContains(t, n, "onboarding_list")
	assert.Equal(t, "Home", n["label"])
}

func TestNormalizeKeepsContentDropForAllDoctypes(t *testing.T) {
	doc := &docstore.Document{Doctype: docstore.DoctypeLetterHead, Name: "Acme", Fields: docstore.Fields{
		"content": "<div/>",
		"source":  "Image",
	}}
	n := normalizeForCompare(doc)
	assert.NotContains(t, n, "content")
	assert.Equal(t, "Image", n["source"])
}

func TestCleanRowFiltersToSemanticKeys(t *testing.T) {
	row := map[string]any{
		"type":     "Link",
		"label":    " Leads ",
		"onboard":  true,
		"hidden":   false,
		"idx":      3,
		"owner":    "Administrator",
		"link_to":  "",
		"doc_view": nil,
	}
	cleaned := cleanRow(row)
	assert.Equal(t, map[string]any{"type": "Link", "label": "Leads", "onboard": 1}, cleaned)
}

func TestRowsEmptiedByCleaningAreDropped(t *testing.T) {
	rows := normalizeWorkspaceRows([]map[string]any{
		{"idx": 1, "owner": "Administrator"},
		{"type": "Link", "label": "Tasks"},
	})
	assert.Len(t, rows, 1)
	assert.Equal(t, "Tasks", rows[0]["label"])
}

func TestTrivialValueEquivalence(t *testing.T) {
	assert.True(t, valuesEqual(nil, ""))
	assert.True(t, valuesEqual(0, nil))
	assert.True(t, valuesEqual([]any{}, nil))
	assert.True(t, valuesEqual(map[string]any{}, ""))
	assert.True(t, valuesEqual(false, nil))
	assert.False(t, valuesEqual("x", nil))
	assert.False(t, valuesEqual(1, nil))
}

func TestBoolIntCoercionInComparison(t *testing.T) {
	assert.True(t, valuesEqual(true, 1))
	assert.True(t, valuesEqual(false, 0))
	assert.True(t, valuesEqual(1, 1.0))
	assert.False(t, valuesEqual(true, 0))
}
