package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tripproxy/pkg/tripproxy/template"
)

func resolveCmd() *cobra.Command {
	var options string
	var query []string
	var envFiles []string
	var missing string

	c := &cobra.Command{
		Use:   "resolve <encodedUrl>",
		Short: "Resolve a URL template without fetching it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseQueryFlags(query)
			if err != nil {
				return err
			}

			action, ok := template.ParseMissingAction(missing)
			if !ok {
				return fmt.Errorf("invalid --missing-env %q (want empty, keep or error)", missing)
			}

			lookup := template.LookupFunc(template.OSLookup)
			if len(envFiles) > 0 {
				dotenv, err := template.DotenvLookup(envFiles...)
				if err != nil {
					return err
				}
				lookup = template.ChainLookup(lookup, dotenv)
			}

			r := template.NewResolver(
				template.WithLookup(lookup),
				template.WithMissingAction(action),
			)
			res, err := r.Resolve(args[0], options, params)
			if err != nil {
				return err
			}

			out := map[string]any{"url": res.URL}
			if res.Options != nil {
				out["options"] = res.Options
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	c.Flags().StringVar(&options, "options", "", "Percent-encoded options JSON")
	c.Flags().StringArrayVarP(&query, "query", "q", nil, "Query value as key=value (repeatable)")
	c.Flags().StringSliceVar(&envFiles, "env-file", nil, ".env files consulted after the process environment")
	c.Flags().StringVar(&missing, "missing-env", "empty", "Unresolved ${VAR} handling: empty|keep|error")
	return c
}

// parseQueryFlags turns repeated key=value flags into query values. The
// first value for a key wins, matching the server.
func parseQueryFlags(flags []string) (map[string]string, error) {
	params := make(map[string]string, len(flags))
	for _, f := range flags {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --query %q (want key=value)", f)
		}
		if _, seen := params[k]; !seen {
			params[k] = v
		}
	}
	return params, nil
}
