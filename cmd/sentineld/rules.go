package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/quantshield/hips-sentinel/internal/core/config"
	"github.com/quantshield/hips-sentinel/internal/core/engine"
)

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesStatusCmd)
	rootCmd.AddCommand(rulesCmd)
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the policy rule store and correlation engine",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every rule in the configured rule store, in match order",
	RunE:  runRulesList,
}

var rulesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a diagnostic snapshot of the rule store and correlation engine",
	RunE:  runRulesStatus,
}

// buildForInspection loads configuration and assembles an Engine without
// starting it, so `rules list`/`rules status` can read its Rules and
// Correlation state without touching monitors or self-protection.
func buildForInspection() (*engine.Engine, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	eng, err := engine.New(cfg, prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return eng, nil
}

func runRulesList(cmd *cobra.Command, args []string) error {
	eng, err := buildForInspection()
	if err != nil {
		return err
	}

	rules := eng.Rules.List()
	if len(rules) == 0 {
		fmt.Println("no rules loaded")
		return nil
	}
	for i, r := range rules {
		status := "enabled"
		if !r.Enabled {
			status = "disabled"
		}
		fmt.Printf("%2d. %-20s type=%-20s min_level=%-8s action=%-10s %s\n",
			i+1, r.Name, string(r.EventType), r.MinThreatLevel.String(), string(r.Action), status)
	}
	return nil
}

func runRulesStatus(cmd *cobra.Command, args []string) error {
	eng, err := buildForInspection()
	if err != nil {
		return err
	}

	rules := eng.Rules.List()
	enabled := 0
	for _, r := range rules {
		if r.Enabled {
			enabled++
		}
	}

	fmt.Printf("rules:        %d total, %d enabled\n", len(rules), enabled)
	fmt.Printf("correlation:  %d events processed, %d correlations emitted, %d active groups\n",
		eng.Correlation.ProcessedEventCount(), eng.Correlation.CorrelationCount(), len(eng.Correlation.Snapshot()))
	return nil
}
