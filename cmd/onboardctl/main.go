// onboardctl drives provisioning from the command line: plan or apply a
// blueprint, run the policy doctor, and harden workspaces, against the same
// wiring the server uses.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"onboard/internal/audit"
	"onboard/internal/blueprint"
	"onboard/internal/collab"
	"onboard/internal/docstore"
	"onboard/internal/hooks"
	"onboard/internal/letterhead"
	"onboard/internal/platform/config"
	"onboard/internal/platform/logger"
	"onboard/internal/policy"
	"onboard/internal/provision"
	"onboard/internal/scope"
	"onboard/internal/workspace"
	"onboard/pkg/requestcontext"
)

type app struct {
	cfg      config.Server
	store    docstore.Store
	loader   *blueprint.Loader
	policies *policy.Source
	hardener *workspace.Hardener
	svc      *provision.Service
	runner   *hooks.Runner

	close func()
}

func newApp() (*app, error) {
	cfg := config.FromEnv()
	log := logger.New()

	var (
		store docstore.Store
		txr   docstore.Tx
		cleanup func() = func() {}
	)
	if cfg.DatabaseURL == "" {
		store, txr = docstore.NewInMemory(), docstore.NoTx{}
	} else {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		pg := docstore.NewPostgres(db)
		if err := pg.Migrate(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		store, txr = pg, docstore.NewPostgresTx(db)
		cleanup = func() { db.Close() }
	}

	loader := blueprint.NewLoader(cfg.BlueprintRoot)
	policies := &policy.Source{
		Root:         cfg.BlueprintRoot,
		ExplicitPath: cfg.PolicyPath,
		Slug:         cfg.BlueprintSlug,
		Resolver:     loader,
		Logger:       log,
	}
	hardener := workspace.NewHardener(store)
	svc := provision.NewService(provision.Config{
		Loader:      loader,
		Store:       store,
		Tx:          txr,
		Hardener:    hardener,
		Letterheads: letterhead.NewApplier(loader, store, &letterhead.DiskFileStore{Root: cfg.FilesRoot}, log),
		Audits:      audit.NewPublisher(audit.NewMemory(), nil),
		Scopes:      scope.NewResolver(store, log),
		Logger:      log,
		Policies:    policies,
	})
	runner := hooks.NewRunner(loader, store, svc, hardener, collab.NewService(store, policies, log), log)
	runner.DefaultSlug = cfg.BlueprintSlug

	return &app{
		cfg:      cfg,
		store:    store,
		loader:   loader,
		policies: policies,
		hardener: hardener,
		svc:      svc,
		runner:   runner,
		close:    cleanup,
	}, nil
}

func (a *app) context(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	site := a.cfg.Site
	if site == "" {
		site = "localhost"
	}
	ctx = requestcontext.WithSite(ctx, site)
	return requestcontext.WithUser(ctx, "Administrator")
}

func printJSON(cmd *cobra.Command, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(raw))
	return nil
}

func main() {
	root := &cobra.Command{
		Use:           "onboardctl",
		Short:         "Tenant onboarding control tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		blueprintSlug string
		dryRun        bool
		commitRef     string
		harden        bool
	)

	provisionCmd := &cobra.Command{
		Use:   "provision",
		Short: "Apply a tenant blueprint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			res, err := a.svc.Provision(a.context(cmd), provision.Request{
				Slug:             blueprintSlug,
				DryRun:           dryRun,
				CommitRef:        commitRef,
				HardenWorkspaces: harden || a.cfg.HardenWorkspaces,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	provisionCmd.Flags().StringVar(&blueprintSlug, "blueprint", "", "blueprint slug")
	provisionCmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan without writing")
	provisionCmd.Flags().StringVar(&commitRef, "commit-ref", "", "source commit recorded on the run log")
	provisionCmd.Flags().BoolVar(&harden, "harden", false, "restrict standard workspaces after apply")
	_ = provisionCmd.MarkFlagRequired("blueprint")

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a provisioning run would change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			plan, err := a.svc.PlanOnly(a.context(cmd), blueprintSlug)
			if err != nil {
				return err
			}
			cmd.Println(plan.Summary())
			return printJSON(cmd, plan)
		},
	}
	planCmd.Flags().StringVar(&blueprintSlug, "blueprint", "", "blueprint slug")
	_ = planCmd.MarkFlagRequired("blueprint")

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the visibility policy against the live schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			report, err := provision.NewDoctor(a.store, a.policies).Report(a.context(cmd))
			if err != nil {
				return err
			}
			if err := printJSON(cmd, report); err != nil {
				return err
			}
			if !report.OK {
				return fmt.Errorf("policy fields missing from schema")
			}
			return nil
		},
	}

	var (
		includeModules []string
		excludeNames   []string
	)
	hardenCmd := &cobra.Command{
		Use:   "harden",
		Short: "Make standard workspaces private",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			summary, err := a.hardener.RestrictStandard(a.context(cmd), workspace.RestrictOptions{
				DryRun:         dryRun,
				IncludeModules: includeModules,
				ExcludeNames:   excludeNames,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	hardenCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	hardenCmd.Flags().StringSliceVar(&includeModules, "include-module", nil, "only workspaces of these modules")
	hardenCmd.Flags().StringSliceVar(&excludeNames, "exclude-name", nil, "workspaces to leave public")

	hooksCmd := &cobra.Command{
		Use:   "hooks",
		Short: "Run lifecycle passes",
	}
	hooksCmd.AddCommand(&cobra.Command{
		Use:   "after-install",
		Short: "Remember the blueprint and provision it once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			a.runner.AfterInstall(a.context(cmd), blueprintSlug)
			return nil
		},
	})
	hooksCmd.AddCommand(&cobra.Command{
		Use:   "after-migrate",
		Short: "Re-run the consistency passes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			a.runner.AfterMigrate(a.context(cmd))
			return nil
		},
	})
	hooksCmd.PersistentFlags().StringVar(&blueprintSlug, "blueprint", "", "blueprint slug")

	root.AddCommand(provisionCmd, planCmd, doctorCmd, hardenCmd, hooksCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
