package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"securestay-risk/internal/assess"
	"securestay-risk/internal/client"
	"securestay-risk/internal/features"
)

func predictCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "predict FLAG...",
		Short: "Score six risk flags given in model order",
		Long: "Score six 0/1 risk flags given in model order: " +
			strings.Join(features.Names(), ", ") + ".",
		Args: cobra.ExactArgs(features.Count),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v [features.Count]int
			for i, a := range args {
				n, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("flag %s: %q is not an integer", features.Names()[i], a)
				}
				v[i] = n
			}

			p, err := g.client().Predict(cmd.Context(), features.FromValues(v))
			if err != nil {
				return err
			}
			policy := assess.DefaultPolicy()
			fmt.Fprintf(cmd.OutOrStdout(), "risk_score=%.6f fraud_score=%d%% status=%s label=%s\n",
				p, assess.Percent(p), policy.Decide(p), policy.Label(p))
			return nil
		},
	}
}

func healthCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show whether the API has a model loaded",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := g.client().Health(cmd.Context())
			var apiErr *client.APIError
			if err != nil && !errors.As(err, &apiErr) {
				return err
			}
			version := h.ModelVersion
			if version == "" {
				version = "-"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status=%s model_loaded=%t model_version=%s\n", h.Status, h.ModelLoaded, version)
			return err
		},
	}
}

func assessCmd(g *globalOpts) *cobra.Command {
	var (
		b       features.Booking
		amount  string
		placed  string
		verbose bool
	)

	c := &cobra.Command{
		Use:   "assess",
		Short: "Submit a booking for a full risk assessment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if amount != "" {
				d, err := decimal.NewFromString(amount)
				if err != nil {
					return fmt.Errorf("amount: %w", err)
				}
				b.Amount = d
			}
			if placed != "" {
				t, err := time.Parse(time.RFC3339, placed)
				if err != nil {
					return fmt.Errorf("placed-at: %w", err)
				}
				b.PlacedAt = t
			}

			a, err := g.client().Assess(cmd.Context(), b)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s  fraud_score=%d%%  status=%s  label=%s\n",
				a.BookingRef, a.ID, a.Percent, a.Decision, a.Label)
			for _, r := range a.Reasons {
				fmt.Fprintf(out, "  - %s\n", r)
			}
			if verbose {
				fmt.Fprintf(out, "  flags=%s model=%s\n", a.Flags, a.ModelVersion)
			}
			return nil
		},
	}

	c.Flags().StringVar(&b.Ref, "ref", "", "booking reference (generated when empty)")
	c.Flags().StringVar(&b.GuestID, "guest", "", "guest id (required)")
	c.Flags().StringVar(&b.DeviceID, "device", "", "device id")
	c.Flags().StringVar(&b.IP, "ip", "", "client IP address")
	c.Flags().StringVar(&b.Country, "country", "", "declared country, ISO code")
	c.Flags().StringVar(&b.BillingCountry, "billing-country", "", "billing country, ISO code (required)")
	c.Flags().StringVar(&amount, "amount", "0", "booking amount")
	c.Flags().StringVar(&placed, "placed-at", "", "booking time, RFC 3339 (defaults to now)")
	c.Flags().BoolVarP(&verbose, "verbose", "v", false, "print flags and model version")

	_ = c.MarkFlagRequired("guest")
	_ = c.MarkFlagRequired("billing-country")
	return c
}

func recentCmd(g *globalOpts) *cobra.Command {
	var limit int

	c := &cobra.Command{
		Use:   "recent",
		Short: "List the newest assessments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := g.client().Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tREF\tSCORE\tSTATUS\tGUEST")
			for _, a := range list {
				fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%s\n",
					a.CreatedAt.Format(time.RFC3339), a.BookingRef, a.Percent, a.Decision, a.GuestID)
			}
			return tw.Flush()
		},
	}
	c.Flags().IntVarP(&limit, "limit", "n", 20, "number of assessments to list")
	return c
}
