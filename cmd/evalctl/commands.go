package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	appguidelines "github.com/bryanwahyu/tor-evaluator/internal/application/guidelines"
	"github.com/bryanwahyu/tor-evaluator/internal/config"
	"github.com/bryanwahyu/tor-evaluator/internal/domain/guidelines"
)

// GuidelineService is what the commands call.
type GuidelineService interface {
	Resolve(ctx context.Context, email, organizationID string) (*appguidelines.Resolution, error)
	CanAccess(ctx context.Context, email, guidelineID string) (bool, error)
	AuditTrail(ctx context.Context, q guidelines.AuditQuery) ([]*guidelines.AccessAudit, error)
}

type opener func(ctx context.Context, cfgPath string, migrate bool) (GuidelineService, func(), error)

type globals struct {
	configPath string
	asJSON     bool
}

func newRootCmd(open opener) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "evalctl",
		Short:         "Inspect guideline visibility and the access audit log",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", config.Path(), "path to config.yaml")
	root.PersistentFlags().BoolVar(&g.asJSON, "json", false, "print JSON instead of a table")

	root.AddCommand(
		newResolveCmd(g, open),
		newCanAccessCmd(g, open),
		newAuditCmd(g, open),
		newMigrateCmd(g, open),
	)
	return root
}

func withService(cmd *cobra.Command, g *globals, open opener, fn func(GuidelineService) error) error {
	svc, closeFn, err := open(cmd.Context(), g.configPath, false)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(svc)
}

func newResolveCmd(g *globals, open opener) *cobra.Command {
	var email, orgID string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "List the guidelines visible to a user (writes audit rows)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, g, open, func(svc GuidelineService) error {
				res, err := svc.Resolve(cmd.Context(), email, orgID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.asJSON {
					return writeJSON(out, map[string]any{
						"organization": res.Organization,
						"guidelines":   res.Guidelines,
						"breakdown":    res.Breakdown(),
					})
				}
				org := "-"
				if res.Organization != nil {
					org = res.Organization.ID
				}
				fmt.Fprintf(out, "organization: %s\n", org)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "GUIDELINE\tNAME\tACCESS\tSCOPE")
				for _, v := range res.Guidelines {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Name, v.AccessType, v.VisibilityScope)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&orgID, "org", "", "requested organization id")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newCanAccessCmd(g *globals, open opener) *cobra.Command {
	var email, guidelineID string
	cmd := &cobra.Command{
		Use:   "can-access",
		Short: "Check one guideline for a user (writes one audit row)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, g, open, func(svc GuidelineService) error {
				ok, err := svc.CanAccess(cmd.Context(), email, guidelineID)
				if err != nil {
					return err
				}
				if g.asJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"user_email":   email,
						"guideline_id": guidelineID,
						"can_access":   ok,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatBool(ok))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&guidelineID, "guideline", "", "guideline id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("guideline")
	return cmd
}

func newAuditCmd(g *globals, open opener) *cobra.Command {
	var (
		q       guidelines.AuditQuery
		granted string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show guideline access audit rows, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if granted != "" {
				b, err := strconv.ParseBool(granted)
				if err != nil {
					return fmt.Errorf("--granted must be true or false")
				}
				q.AccessGranted = &b
			}
			return withService(cmd, g, open, func(svc GuidelineService) error {
				rows, err := svc.AuditTrail(cmd.Context(), q)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if g.asJSON {
					return writeJSON(out, rows)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ACCESSED_AT\tUSER\tORGANIZATION\tGUIDELINE\tGRANTED\tREASON")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
						r.AccessedAt.Format("2006-01-02T15:04:05Z07:00"),
						r.UserEmail, dash(r.OrganizationID), r.GuidelineID, r.AccessGranted, r.AccessReason)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&q.UserEmail, "email", "", "filter by user email")
	cmd.Flags().StringVar(&q.OrganizationID, "org", "", "filter by organization id")
	cmd.Flags().StringVar(&q.GuidelineID, "guideline", "", "filter by guideline id")
	cmd.Flags().StringVar(&granted, "granted", "", "filter by outcome (true|false)")
	cmd.Flags().IntVar(&q.Limit, "limit", 100, "max rows (up to 1000)")
	return cmd
}

func newMigrateCmd(g *globals, open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, closeFn, err := open(cmd.Context(), g.configPath, true)
			if err != nil {
				return err
			}
			closeFn()
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
