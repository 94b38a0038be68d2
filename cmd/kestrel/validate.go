package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a rule definition file (JSON or YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read rule file: %w", err)
			}

			engine, err := rules.NewEngine(cfg.Engine)
			if err != nil {
				return err
			}
			defer engine.Close()

			out := cmd.OutOrStdout()
			defs, err := rules.DecodeDefinitions(data, rules.FormatFromPath(args[0]))
			if err == nil {
				err = engine.Validate(defs)
			}
			if err != nil {
				printRuleErrors(cmd, err)
				return errors.New("rule file is invalid")
			}

			fmt.Fprintf(out, "%s: %d eligibility, %d pre-approval rules valid\n",
				args[0], len(defs.Eligibility), len(defs.Preapproval))
			return nil
		},
	}
}

func printRuleErrors(cmd *cobra.Command, err error) {
	out := cmd.OutOrStdout()

	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			fmt.Fprintln(out, e.Error())
		}
		return
	}
	fmt.Fprintln(out, err.Error())
}
