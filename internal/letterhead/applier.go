// Package letterhead applies a tenant's letterhead configuration: publishing
// image assets, upserting Letter Head documents, and electing the default.
package letterhead

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"onboard/internal/blueprint"
	"onboard/internal/docstore"
	domainerrors "onboard/pkg/domainerrors"
)

// Applier reconciles letterheads from letterheads.yaml and from the asset
// directory scan.
type Applier struct {
	loader *blueprint.Loader
	store  docstore.Store
	files  FileStore
	logger *slog.Logger
}

func NewApplier(loader *blueprint.Loader, store docstore.Store, files FileStore, logger *slog.Logger) *Applier {
	return &Applier{loader: loader, store: store, files: files, logger: logger}
}

// Apply runs the letterheads.yaml pass: publish referenced assets, upsert the
// listed letterheads, then reconcile default and enabled flags. A dry run
// validates without writing. Missing assets and dangling references are fatal
// input errors.
func (a *Applier) Apply(ctx context.Context, slug string, dryRun bool) error {
	conf, err := a.loader.Letterheads(slug)
	if err != nil {
		return err
	}
	if len(conf.Letterheads) == 0 && conf.PreferredDefault == "" && len(conf.KeepEnabled) == 0 && len(conf.CompanyDefaults) == 0 {
		return nil
	}
	assetDir := filepath.Join(a.loader.AssetsDir(slug), "letterheads")

	type pendingFile struct {
		localPath string
		publicURL string
	}
	var pending []pendingFile
	for _, row := range conf.Letterheads {
		if row.Image == "" || row.SourcePath == "" {
			continue
		}
		localPath := filepath.Join(assetDir, row.SourcePath)
		if _, err := os.Stat(localPath); err != nil {
			return domainerrors.New(domainerrors.CodeBadRequest,
				fmt.Sprintf("missing letterhead asset: %s", localPath))
		}
		pending = append(pending, pendingFile{localPath: localPath, publicURL: row.Image})
	}

	if !dryRun {
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range pending {
			g.Go(func() error {
				return a.files.Publish(gctx, p.localPath, p.publicURL)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, p := range pending {
			if err := a.registerPublicFile(ctx, p.publicURL); err != nil {
				return err
			}
		}
		for _, row := range conf.Letterheads {
			if err := a.upsert(ctx, row); err != nil {
				return err
			}
		}
	}

	allNames, err := a.store.Names(ctx, docstore.DoctypeLetterHead, nil)
	if err != nil {
		return err
	}
	known := map[string]struct{}{}
	for _, n := range allNames {
		known[n] = struct{}{}
	}

	preferred := strings.TrimSpace(conf.PreferredDefault)
	keep := map[string]struct{}{}
	for _, n := range conf.KeepEnabled {
		keep[n] = struct{}{}
	}
	if preferred != "" {
		keep[preferred] = struct{}{}
	}

	if preferred != "" {
		if _, ok := known[preferred]; !ok {
			return domainerrors.New(domainerrors.CodeBadRequest,
				fmt.Sprintf("preferred_default not found: %s", preferred))
		}
	}
	var missing []string
	for n := range keep {
		if _, ok := known[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return domainerrors.New(domainerrors.CodeBadRequest,
			fmt.Sprintf("keep_enabled letterheads not found: %v", missing))
	}
	if dryRun {
		return nil
	}

	if err := a.reconcileFlags(ctx, allNames, preferred, keep, len(conf.KeepEnabled) > 0); err != nil {
		return err
	}
	return a.applyCompanyDefaults(ctx, conf.CompanyDefaults, known)
}

// reconcileFlags clears the current default, applies preferred/keep, and
// elects a fallback default when the file names none.
func (a *Applier) reconcileFlags(ctx context.Context, allNames []string, preferred string, keep map[string]struct{}, keepListed bool) error {
	// Clear any current default before setting the new one.
	for _, n := range allNames {
		if err := a.store.SetValue(ctx, docstore.DoctypeLetterHead, n, "is_default", 0); err != nil {
			return err
		}
	}

	if preferred != "" {
		if err := a.store.SetValue(ctx, docstore.DoctypeLetterHead, preferred, "is_default", 1); err != nil {
			return err
		}
		if err := a.store.SetValue(ctx, docstore.DoctypeLetterHead, preferred, "disabled", 0); err != nil {
			return err
		}
	}

	switch {
	case keepListed:
		for _, n := range allNames {
			if _, ok := keep[n]; ok {
				if err := a.store.SetValue(ctx, docstore.DoctypeLetterHead, n, "disabled", 0); err != nil {
					return err
				}
				continue
			}
			if err := a.store.SetValue(ctx, docstore.DoctypeLetterHead, n, "disabled", 1); err != nil {
				return err
			}
		}
	case preferred != "":
		// Lock down to just the preferred letterhead.
		for _, n := range allNames {
			if n == preferred {
				continue
			}
			if err := a.store.SetValue(ctx, docstore.DoctypeLetterHead, n, "disabled", 1); err != nil {
				return err
			}
		}
	}

	if preferred == "" {
		current, err := a.store.ExistsWhere(ctx, docstore.DoctypeLetterHead,
			docstore.Filters{"is_default": 1, "disabled": 0})
		if err != nil {
			return err
		}
		if current == "" {
			candidate := ""
			keepSorted := make([]string, 0, len(keep))
			for n := range keep {
				keepSorted = append(keepSorted, n)
			}
			sort.Strings(keepSorted)
			if len(keepSorted) > 0 {
				candidate = keepSorted[0]
			} else {
				enabled, err := a.store.Names(ctx, docstore.DoctypeLetterHead, docstore.Filters{"disabled": 0})
				if err != nil {
					return err
				}
				if len(enabled) > 0 {
					candidate = enabled[0]
				}
			}
			if candidate != "" {
				if err := a.store.SetValue(ctx, docstore.DoctypeLetterHead, candidate, "is_default", 1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (a *Applier) applyCompanyDefaults(ctx context.Context, defaults map[string]string, known map[string]struct{}) error {
	for company, lh := range defaults {
		if _, ok := known[lh]; !ok {
			a.logger.Warn("company default letterhead unknown", "company", company, "letterhead", lh)
			continue
		}
		exists, err := a.store.Exists(ctx, docstore.DoctypeCompany, company)
		if err != nil {
			return err
		}
		if !exists {
			a.logger.Warn("company for default letterhead not found", "company", company)
			continue
		}
		if err := a.store.SetValue(ctx, docstore.DoctypeCompany, company, "default_letter_head", lh); err != nil {
			return err
		}
	}
	return nil
}

// upsert creates or refreshes one Letter Head from a YAML row. The default
// flag is left alone here; reconcileFlags owns it.
func (a *Applier) upsert(ctx context.Context, row blueprint.LetterheadSpec) error {
	if row.Name == "" {
		return nil
	}
	doc, err := a.store.Get(ctx, docstore.DoctypeLetterHead, row.Name)
	isNew := err != nil
	if isNew {
		doc = &docstore.Document{
			Doctype: docstore.DoctypeLetterHead,
			Name:    row.Name,
			Fields:  docstore.Fields{"letter_head_name": row.Name},
		}
	}
	source := row.Source
	if source == "" {
		source = "Image"
	}
	doc.Set("source", source)
	doc.Set("content", row.Content)
	if row.Image != "" {
		doc.Set("image", row.Image)
	}
	if isNew {
		_, err := a.store.Insert(ctx, doc)
		return err
	}
	return a.store.Update(ctx, doc)
}

// registerPublicFile records a public File document for the URL if none
// exists yet.
func (a *Applier) registerPublicFile(ctx context.Context, publicURL string) error {
	existing, err := a.store.ExistsWhere(ctx, "File", docstore.Filters{
		"file_url": publicURL, "is_private": 0,
	})
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}
	_, err = a.store.Insert(ctx, &docstore.Document{
		Doctype: "File",
		Name:    uuid.NewString(),
		Fields:  docstore.Fields{"file_url": publicURL, "is_private": 0},
	})
	return err
}

var assetExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".svg": {}, ".webp": {}, ".gif": {},
}

// ScanAssets walks the tenant's letterhead asset tree and reconciles a
// letterhead per image found:
//
//	company/<Company>[-default].<ext> -> "<Company> Letter Head"
//	brand/<Brand>.<ext>               -> "<Brand> Brand Letter Head"
//
// A company image whose company does not exist yet is skipped, keeping the
// pass order-agnostic with company creation in the same run.
func (a *Applier) ScanAssets(ctx context.Context, slug string) error {
	base := filepath.Join(a.loader.AssetsDir(slug), "letterheads")

	companyImages, err := scanDir(filepath.Join(base, "company"))
	if err != nil {
		return err
	}
	for _, path := range companyImages {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		isDefault := false
		if strings.HasSuffix(strings.ToLower(stem), "-default") {
			stem = stem[:len(stem)-len("-default")]
			isDefault = true
		}
		exists, err := a.store.Exists(ctx, docstore.DoctypeCompany, stem)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := a.ensureFromAsset(ctx, stem+" Letter Head", path, stem, "", isDefault); err != nil {
			return err
		}
	}

	brandImages, err := scanDir(filepath.Join(base, "brand"))
	if err != nil {
		return err
	}
	for _, path := range brandImages {
		brand := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if err := a.ensureFromAsset(ctx, brand+" Brand Letter Head", path, "", brand, false); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) ensureFromAsset(ctx context.Context, name, path, company, brand string, isDefault bool) error {
	publicURL := "/files/letterheads/" + filepath.Base(path)
	if err := a.files.Publish(ctx, path, publicURL); err != nil {
		return err
	}
	if err := a.registerPublicFile(ctx, publicURL); err != nil {
		return err
	}

	doc, err := a.store.Get(ctx, docstore.DoctypeLetterHead, name)
	isNew := err != nil
	if isNew {
		doc = &docstore.Document{
			Doctype: docstore.DoctypeLetterHead,
			Name:    name,
			Fields:  docstore.Fields{"letter_head_name": name},
		}
	}
	doc.Set("source", "Image")
	doc.Set("image", publicURL)
	if company != "" {
		doc.Set("company", company)
	}
	if brand != "" {
		doc.Set("brand", brand)
	}
	if isDefault {
		doc.Set("is_default", 1)
	} else {
		doc.Set("is_default", 0)
	}

	if isNew {
		_, err := a.store.Insert(ctx, doc)
		return err
	}
	return a.store.Update(ctx, doc)
}

func scanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := assetExtensions[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
