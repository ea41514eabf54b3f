package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-matcher/internal/app"
	"github.com/joseph-ayodele/invoice-matcher/internal/approval"
	"github.com/joseph-ayodele/invoice-matcher/internal/entity"
	"github.com/joseph-ayodele/invoice-matcher/internal/matching"
)

var (
	catalogPath    string
	existingPath   string
	itemsPath      string
	candidatesPath string
	matchSupplier  string
	allowPartial   bool
)

// matchCmd matches already-extracted line items against a catalog
var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match invoice line items against an estimate catalog",
	Long: `Match a JSON array of invoice line items against a JSON array of estimate
line items and report suggestions with their approval decision.

Examples:
  invoicematch match --catalog estimate.json --items lines.json --supplier "Acme Concrete"`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

// processCmd extracts and matches one document
var processCmd = &cobra.Command{
	Use:   "process <file|dir>",
	Short: "Extract documents and match their lines against an estimate catalog",
	Long: `Run extraction page by page, match every extracted line against the catalog and
evaluate the match set for approval. A directory is processed on the worker pool,
one report per distinct file.

Examples:
  invoicematch process --catalog estimate.json invoice.txt
  invoicematch process --catalog estimate.json --existing confirmed.json ./inbox`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

// confirmCmd records confirmed candidates as patterns
var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Record confirmed matches in the pattern store",
	Long: `Record every candidate that names a target as a confirmed correspondence. The
set must pass the approval gate unless --partial is given, in which case blocked
candidates are skipped.

Examples:
  invoicematch match --catalog estimate.json --items lines.json --supplier Acme > out.json
  invoicematch confirm --catalog estimate.json --items lines.json --candidates out.json --supplier Acme`,
	Args: cobra.NoArgs,
	RunE: runConfirm,
}

func init() {
	for _, c := range []*cobra.Command{matchCmd, processCmd, confirmCmd} {
		c.Flags().StringVar(&catalogPath, "catalog", "", "estimate line items JSON file (required)")
		_ = c.MarkFlagRequired("catalog")
	}
	for _, c := range []*cobra.Command{matchCmd, processCmd} {
		c.Flags().StringVar(&existingPath, "existing", "", "confirmed correspondences JSON file")
	}
	for _, c := range []*cobra.Command{matchCmd, confirmCmd} {
		c.Flags().StringVar(&itemsPath, "items", "", "invoice line items JSON file (required)")
		c.Flags().StringVar(&matchSupplier, "supplier", "", "supplier name")
		_ = c.MarkFlagRequired("items")
	}
	confirmCmd.Flags().StringVar(&candidatesPath, "candidates", "", "match output JSON file (required)")
	confirmCmd.Flags().BoolVar(&allowPartial, "partial", false, "record approvable candidates even when others block")
	_ = confirmCmd.MarkFlagRequired("candidates")
}

type matchOutput struct {
	Candidates []entity.MatchCandidate `json:"candidates"`
	Decision   approval.Decision       `json:"decision"`
}

func loadCatalog() ([]entity.TargetLineItem, []entity.Correspondence, error) {
	var catalog []entity.TargetLineItem
	if err := readJSON(catalogPath, &catalog); err != nil {
		return nil, nil, err
	}
	var existing []entity.Correspondence
	if existingPath != "" {
		if err := readJSON(existingPath, &existing); err != nil {
			return nil, nil, err
		}
	}
	return catalog, existing, nil
}

func runMatch(cmd *cobra.Command, _ []string) error {
	catalog, existing, err := loadCatalog()
	if err != nil {
		return err
	}
	var items []entity.LineItem
	if err := readJSON(itemsPath, &items); err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		cands := a.Matcher.Match(ctx, matching.Input{
			SupplierName: matchSupplier,
			LineItems:    items,
			Catalog:      catalog,
			Existing:     existing,
		})
		return printJSON(matchOutput{Candidates: cands, Decision: a.Gate.Evaluate(cands)})
	})
}

func runConfirm(cmd *cobra.Command, _ []string) error {
	catalog, _, err := loadCatalog()
	if err != nil {
		return err
	}
	var items []entity.LineItem
	if err := readJSON(itemsPath, &items); err != nil {
		return err
	}
	var in matchOutput
	if err := readJSON(candidatesPath, &in); err != nil {
		return err
	}
	if matchSupplier == "" {
		return fmt.Errorf("--supplier is required to record patterns")
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		out, err := a.Confirm(ctx, app.ConfirmRequest{
			SupplierName: matchSupplier,
			LineItems:    items,
			Candidates:   in.Candidates,
			Catalog:      catalog,
			Partial:      allowPartial,
		})
		if err != nil {
			return err
		}
		return printJSON(out)
	})
}
