package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func analyzeCmd(a *app) *cobra.Command {
	var (
		section string
		format  string
		dir     string
		quarter string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run every analysis stage once and print the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unknown format %q, want json or yaml", format)
			}
			if err := a.overrideSource(dir, quarter); err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			r, cleanup, err := a.newRunner(ctx, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			var out interface{}
			if section != "" {
				out, err = r.Section(ctx, section)
			} else {
				out, err = r.Dashboard(ctx)
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, out)
		},
	}

	cmd.Flags().StringVar(&section, "section", "", "print a single section (deviation_tracking, capa_candidates, mismatch_analysis, predictive_modeling, audit_summary)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringVar(&dir, "dir", "", "override source.dir")
	cmd.Flags().StringVar(&quarter, "quarter", "", "override source.quarter")
	return cmd
}

func (a *app) overrideSource(dir, quarter string) error {
	if dir != "" {
		if err := a.configManager.Set("source.dir", dir); err != nil {
			return err
		}
	}
	if quarter != "" {
		if err := a.configManager.Set("source.quarter", quarter); err != nil {
			return err
		}
	}
	return nil
}

func render(w io.Writer, format string, v interface{}) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}
