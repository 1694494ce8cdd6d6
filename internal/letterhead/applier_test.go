package letterhead

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"onboard/internal/blueprint"
	"onboard/internal/docstore"
	domainerrors "onboard/pkg/domainerrors"
)

type ApplierSuite struct {
	suite.Suite

	ctx     context.Context
	store   *docstore.InMemory
	files   *MemoryFileStore
	root    string
	applier *Applier
}

func TestApplierSuite(t *testing.T) {
	suite.Run(t, new(ApplierSuite))
}

func (s *ApplierSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = docstore.NewInMemory()
	s.files = NewMemoryFileStore()
	s.root = s.T().TempDir()
	loader := blueprint.NewLoader(s.root)
	s.applier = NewApplier(loader, s.store, s.files, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *ApplierSuite) write(slug, rel, content string) string {
	path := filepath.Join(s.root, slug, rel)
	s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0o755))
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *ApplierSuite) seedLetterhead(name string, isDefault, disabled int) {
	_, err := s.store.Insert(s.ctx, &docstore.Document{
		Doctype: docstore.DoctypeLetterHead,
		Name:    name,
		Fields:  docstore.Fields{"letter_head_name": name, "is_default": isDefault, "disabled": disabled},
	})
	s.Require().NoError(err)
}

func (s *ApplierSuite) TestApplyPublishesAndUpserts() {
	s.write("acme", "assets/letterheads/acme.png", "png-bytes")
	s.write("acme", "letterheads.yaml", `
letterheads:
  - name: Acme Letter Head
    image: /files/letterheads/acme.png
    source_path: acme.png
preferred_default: Acme Letter Head
`)

	s.Require().NoError(s.applier.Apply(s.ctx, "acme", false))

	s.Contains(s.files.Published, "/files/letterheads/acme.png")

	doc, err := s.store.Get(s.ctx, docstore.DoctypeLetterHead, "Acme Letter Head")
	s.Require().NoError(err)
	s.Equal("Image", doc.GetString("source"))
	s.Equal(1, doc.Get("is_default"))
	s.Equal(0, doc.Get("disabled"))

	fileDoc, err := s.store.ExistsWhere(s.ctx, "File", docstore.Filters{
		"file_url": "/files/letterheads/acme.png", "is_private": 0,
	})
	s.Require().NoError(err)
	s.NotEmpty(fileDoc)
}

func (s *ApplierSuite) TestMissingAssetIsFatal() {
	s.write("acme", "letterheads.yaml", `
letterheads:
  - name: Acme Letter Head
    image: /files/letterheads/acme.png
    source_path: acme.png
`)
	err := s.applier.Apply(s.ctx, "acme", false)
	s.Require().Error(err)
	s.Equal(domainerrors.CodeBadRequest, domainerrors.CodeOf(err))
}

func (s *ApplierSuite) TestUnknownPreferredDefaultIsFatal() {
	s.write("acme", "letterheads.yaml", `
preferred_default: Ghost
`)
	err := s.applier.Apply(s.ctx, "acme", false)
	s.Require().Error(err)
	s.Equal(domainerrors.CodeBadRequest, domainerrors.CodeOf(err))
}

func (s *ApplierSuite) TestPreferredDefaultLocksOutOthers() {
	s.seedLetterhead("Old Default", 1, 0)
	s.seedLetterhead("Acme Letter Head", 0, 0)
	s.write("acme", "letterheads.yaml", `
preferred_default: Acme Letter Head
`)

	s.Require().NoError(s.applier.Apply(s.ctx, "acme", false))

	acme, err := s.store.Get(s.ctx, docstore.DoctypeLetterHead, "Acme Letter Head")
	s.Require().NoError(err)
	s.Equal(1, acme.Get("is_default"))
	s.Equal(0, acme.Get("disabled"))

	old, err := s.store.Get(s.ctx, docstore.DoctypeLetterHead, "Old Default")
	s.Require().NoError(err)
	s.Equal(0, old.Get("is_default"))
	s.Equal(1, old.Get("disabled"))
}

func (s *ApplierSuite) TestKeepEnabledDisablesTheRest() {
	s.seedLetterhead("Keep Me", 0, 1)
	s.seedLetterhead("Drop Me", 0, 0)
	s.write("acme", "letterheads.yaml", `
keep_enabled: [Keep Me]
`)

	s.Require().NoError(s.applier.Apply(s.ctx, "acme", false))

	keep, err := s.store.Get(s.ctx, docstore.DoctypeLetterHead, "Keep Me")
	s.Require().NoError(err)
	s.Equal(0, keep.Get("disabled"))
	s.Equal(1, keep.Get("is_default"), "fallback election picks the kept letterhead")

	drop, err := s.store.Get(s.ctx, docstore.DoctypeLetterHead, "Drop Me")
	s.Require().NoError(err)
	s.Equal(1, drop.Get("disabled"))
}

func (s *ApplierSuite) TestDryRunValidatesWithoutWriting() {
	s.seedLetterhead("Existing", 0, 0)
	s.write("acme", "assets/letterheads/acme.png", "png-bytes")
	s.write("acme", "letterheads.yaml", `
letterheads:
  - name: Acme Letter Head
    image: /files/letterheads/acme.png
    source_path: acme.png
preferred_default: Existing
`)

	s.Require().NoError(s.applier.Apply(s.ctx, "acme", true))

	s.Empty(s.files.Published)
	ok, err := s.store.Exists(s.ctx, docstore.DoctypeLetterHead, "Acme Letter Head")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ApplierSuite) TestCompanyDefaults() {
	s.seedLetterhead("Acme Letter Head", 0, 0)
	_, err := s.store.Insert(s.ctx, &docstore.Document{
		Doctype: docstore.DoctypeCompany, Name: "Acme GmbH", Fields: docstore.Fields{"abbr": "AG"},
	})
	s.Require().NoError(err)

	s.write("acme", "letterheads.yaml", `
company_defaults:
  Acme GmbH: Acme Letter Head
  Ghost Corp: Acme Letter Head
`)
	s.Require().NoError(s.applier.Apply(s.ctx, "acme", false))

	v, err := s.store.GetValue(s.ctx, docstore.DoctypeCompany, "Acme GmbH", "default_letter_head")
	s.Require().NoError(err)
	s.Equal("Acme Letter Head", v)
}

func (s *ApplierSuite) TestScanAssetsCompanyAndBrand() {
	_, err := s.store.Insert(s.ctx, &docstore.Document{
		Doctype: docstore.DoctypeCompany, Name: "Acme GmbH", Fields: docstore.Fields{"abbr": "AG"},
	})
	s.Require().NoError(err)

	s.write("acme", "assets/letterheads/company/Acme GmbH-default.png", "png")
	s.write("acme", "assets/letterheads/company/Ghost Corp.png", "png")
	s.write("acme", "assets/letterheads/brand/Northwind.svg", "svg")
	s.write("acme", "assets/letterheads/company/notes.txt", "not an image")

	s.Require().NoError(s.applier.ScanAssets(s.ctx, "acme"))

	company, err := s.store.Get(s.ctx, docstore.DoctypeLetterHead, "Acme GmbH Letter Head")
	s.Require().NoError(err)
	s.Equal(1, company.Get("is_default"))
	s.Equal("Acme GmbH", company.GetString("company"))
	s.Equal("/files/letterheads/Acme GmbH-default.png", company.GetString("image"))

	brand, err := s.store.Get(s.ctx, docstore.DoctypeLetterHead, "Northwind Brand Letter Head")
	s.Require().NoError(err)
	s.Equal("Northwind", brand.GetString("brand"))

	// The company image without a Company record is skipped.
	ok, err := s.store.Exists(s.ctx, docstore.DoctypeLetterHead, "Ghost Corp Letter Head")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ApplierSuite) TestEmptyConfigIsNoop() {
	s.Require().NoError(s.applier.Apply(s.ctx, "acme", false))
	s.Empty(s.files.Published)
}
