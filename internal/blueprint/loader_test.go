package blueprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"onboard/internal/docstore"
	"onboard/pkg/domainerrors"
)

type LoaderSuite struct {
	suite.Suite

	root   string
	loader *Loader
}

func TestLoaderSuite(t *testing.T) {
	suite.Run(t, new(LoaderSuite))
}

func (s *LoaderSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.loader = NewLoader(s.root)
}

func (s *LoaderSuite) write(slug, name, content string) {
	dir := filepath.Join(s.root, slug)
	s.Require().NoError(os.MkdirAll(dir, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func (s *LoaderSuite) TestCollectMergesLaterFilesFieldByField() {
	s.write("acme", "10_base.yaml", `
docs:
  - doctype: Company
    name: Acme GmbH
    abbr: AG
    default_currency: EUR
    country: Germany
`)
	s.write("acme", "20_override.yaml", `
docs:
  - doctype: Company
    name: Acme GmbH
    default_currency: USD
`)

	docs, err := s.loader.Collect("acme")
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	s.Equal("USD", docs[0].GetString("default_currency"))
	// Fields the later file does not mention survive.
	s.Equal("AG", docs[0].GetString("abbr"))
	s.Equal("Germany", docs[0].GetString("country"))
}

func (s *LoaderSuite) TestCollectReadsFilesInLexicalOrder() {
	s.write("acme", "b.yaml", `
docs:
  - doctype: Brand
    name: Zest
    description: from b
`)
	s.write("acme", "a.yaml", `
docs:
  - doctype: Brand
    name: Zest
    description: from a
`)

	docs, err := s.loader.Collect("acme")
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	s.Equal("from b", docs[0].GetString("description"))
}

func (s *LoaderSuite) TestNameDerivedFromTitle() {
	s.write("acme", "docs.yaml", `
docs:
  - doctype: Letter Head
    title: Main
    source: HTML
`)

	docs, err := s.loader.Collect("acme")
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	s.Equal("Main", docs[0].Name)
}

func (s *LoaderSuite) TestTaxTemplateNameComposesTitleAndCompany() {
	s.write("acme", "docs.yaml", `
docs:
  - doctype: Sales Taxes and Charges Template
    title: VAT
    company: Acme GmbH
  - doctype: Sales Taxes and Charges Template
    title: Export
`)

	docs, err := s.loader.Collect("acme")
	s.Require().NoError(err)
	s.Require().Len(docs, 2)
	s.Equal("VAT - Acme GmbH", docs[0].Name)
	s.Equal("Export", docs[1].Name)
}

func (s *LoaderSuite) TestRequiredFieldsBackfilledFromName() {
	s.write("acme", "docs.yaml", `
docs:
  - doctype: Brand
    name: Zest
  - doctype: Company
    name: Acme GmbH
  - doctype: Role Profile
    name: Sales Staff
`)

	docs, err := s.loader.Collect("acme")
	s.Require().NoError(err)
	s.Require().Len(docs, 3)
	s.Equal("Zest", docs[0].GetString("brand"))
	s.Equal("Acme GmbH", docs[1].GetString("company_name"))
	s.Equal("Sales Staff", docs[2].GetString("role_profile"))
}

func (s *LoaderSuite) TestBackfillLeavesBlankedFieldsAlone() {
	s.write("acme", "docs.yaml", `
docs:
  - doctype: Brand
    name: Zest
    brand: ""
`)

	docs, err := s.loader.Collect("acme")
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	s.Contains(docs[0].Fields, "brand")
	s.Equal("", docs[0].GetString("brand"))
}

func (s *LoaderSuite) TestDocWithoutIdentityFailsTheRun() {
	s.write("acme", "docs.yaml", `
docs:
  - doctype: Company
    abbr: AG
`)

	_, err := s.loader.Collect("acme")
	s.Require().Error(err)
	s.Equal(domainerrors.CodeBadRequest, domainerrors.CodeOf(err))
}

func (s *LoaderSuite) TestMalformedFileFailsTheRun() {
	s.write("acme", "docs.yaml", "docs: [not: valid: yaml")

	_, err := s.loader.Collect("acme")
	s.Require().Error(err)
	s.Equal(domainerrors.CodeBadRequest, domainerrors.CodeOf(err))
}

func (s *LoaderSuite) TestEmptyBlueprintCollectsNothing() {
	s.Require().NoError(os.MkdirAll(filepath.Join(s.root, "acme"), 0o755))

	docs, err := s.loader.Collect("acme")
	s.Require().NoError(err)
	s.Empty(docs)
}

func (s *LoaderSuite) TestSiblingFilesWithoutDocsKeyAreHarmless() {
	s.write("acme", "docs.yaml", `
docs:
  - doctype: Brand
    name: Zest
`)
	s.write("acme", "users.yaml", `
users:
  - email: jo@acme.example
`)

	docs, err := s.loader.Collect("acme")
	s.Require().NoError(err)
	s.Len(docs, 1)
}

func TestMergeDocsKeepsFirstAppearanceOrder(t *testing.T) {
	docs, err := MergeDocs([][]map[string]any{
		{
			{"doctype": "Brand", "name": "Zest"},
			{"doctype": "Company", "name": "Acme GmbH"},
		},
		{
			{"doctype": "Brand", "name": "Zest", "description": "updated"},
		},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0].Doctype != "Brand" || docs[1].Doctype != docstore.DoctypeCompany {
		t.Fatalf("order not preserved: %s, %s", docs[0].Doctype, docs[1].Doctype)
	}
	if docs[0].GetString("description") != "updated" {
		t.Fatalf("later set did not win: %q", docs[0].GetString("description"))
	}
}
