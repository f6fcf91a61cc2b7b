package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/nexus-trading/walletscope/internal/coordinator"
	"github.com/nexus-trading/walletscope/internal/explain"
	"github.com/nexus-trading/walletscope/internal/risk"
)

func newAnalyzeCommand(opts *rootOptions) *cobra.Command {
	var withTrace bool

	cmd := &cobra.Command{
		Use:   "analyze <wallet>",
		Short: "Analyze one wallet and print the JSON report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a := buildApp(ctx, opts.cfg, opts.stub)
			defer a.Close()

			report, err := a.coordinator.AnalyzeWallet(ctx, args[0])
			if err != nil {
				return err
			}
			if err := printReport(os.Stdout, report); err != nil {
				return err
			}
			if withTrace {
				printTrace(os.Stdout, report, opts.cfg.Analysis.Advisor.Thresholds)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withTrace, "explain", false, "print a trace line per specialist after the report")
	return cmd
}

func printReport(w io.Writer, report *coordinator.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func printTrace(w io.Writer, report *coordinator.Report, tiers risk.Thresholds) {
	d := report.Detailed
	fmt.Fprintf(w, "%s: %s\n", explain.TransactionMonitor,
		explain.ExplainWith(tiers, explain.TransactionMonitor, explain.FromVerdict(d.TransactionMonitor)))

	mints := make([]string, 0, len(d.TokenForensics))
	for m := range d.TokenForensics {
		mints = append(mints, m)
	}
	sort.Strings(mints)
	for _, m := range mints {
		fmt.Fprintf(w, "%s[%s]: %s\n", explain.TokenForensics, m,
			explain.ExplainWith(tiers, explain.TokenForensics, explain.FromTokenRisk(d.TokenForensics[m])))
	}

	fmt.Fprintf(w, "%s: %s\n", explain.RiskAdvisor,
		explain.ExplainWith(tiers, explain.RiskAdvisor, explain.FromAdvice(d.RiskAdvisor)))
}
