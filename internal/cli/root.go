// Package cli implements riskctl, the operator command line for the risk API.
package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"securestay-risk/internal/client"
)

const defaultAPIURL = "http://localhost:8000"

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type globalOpts struct {
	addr    string
	timeout time.Duration
}

func (g *globalOpts) client() *client.Client {
	return client.New(g.addr, g.timeout)
}

func newRootCmd() *cobra.Command {
	g := &globalOpts{}

	cmd := &cobra.Command{
		Use:          "riskctl",
		Short:        "Query the booking risk API",
		SilenceUsage: true,
	}

	addr := os.Getenv("RISK_API_URL")
	if addr == "" {
		addr = defaultAPIURL
	}
	cmd.PersistentFlags().StringVar(&g.addr, "addr", addr, "risk API base URL (env RISK_API_URL)")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 5*time.Second, "request timeout")

	cmd.AddCommand(predictCmd(g), healthCmd(g), assessCmd(g), recentCmd(g))
	return cmd
}
