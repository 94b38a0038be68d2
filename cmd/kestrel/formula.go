package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/formula"
)

func newFormulaCmd(opts *rootOptions) *cobra.Command {
	var (
		vars    []string
		minVal  string
		maxVal  string
		explain bool
	)

	cmd := &cobra.Command{
		Use:   "formula <expression>",
		Short: "Evaluate a formula",
		Example: `  kestrel formula "base * (1 + loading / 100)" --var base=1200 --var loading=15
  kestrel formula "max(premium, 50)" --explain`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ev := formula.NewEvaluator(cfg.Engine)
			out := cmd.OutOrStdout()

			if explain {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ev.Validate(args[0]))
			}

			variables, err := parseVars(vars)
			if err != nil {
				return err
			}
			var bounds formula.Bounds
			if bounds.Min, err = parseBound("min", minVal); err != nil {
				return err
			}
			if bounds.Max, err = parseBound("max", maxVal); err != nil {
				return err
			}

			result, err := ev.Evaluate(args[0], variables, bounds)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, result.String())
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&vars, "var", nil, "variable as name=value (repeatable)")
	cmd.Flags().StringVar(&minVal, "min", "", "lower bound for the result")
	cmd.Flags().StringVar(&maxVal, "max", "", "upper bound for the result")
	cmd.Flags().BoolVar(&explain, "explain", false, "print variables and complexity instead of evaluating")
	return cmd
}

func parseVars(pairs []string) (map[string]decimal.Decimal, error) {
	variables := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: expected name=value", pair)
		}
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid --var %q: %w", pair, err)
		}
		variables[name] = value
	}
	return variables, nil
}

func parseBound(name, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return &value, nil
}
