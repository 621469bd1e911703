package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/addrnorm/internal/config"
	"github.com/JonMunkholm/addrnorm/internal/logging"
	"github.com/JonMunkholm/addrnorm/internal/rules"
)

func profileCmd() *cobra.Command {
	var path string
	var format string

	c := &cobra.Command{
		Use:   "profile",
		Short: "Show which rule profile would be used and what it contains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("path") {
				cfg.Rules.ProfilePath = path
			}

			p := rules.Load(rules.Options{
				OverridePath:   cfg.Rules.ProfilePath,
				StreetAbbrPath: cfg.Rules.StreetAbbrPath,
				SearchDepth:    cfg.Rules.SearchDepth,
				Logger:         logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format),
			})
			return printProfile(cmd.OutOrStdout(), p.Stats(), format)
		},
	}

	c.Flags().StringVarP(&path, "path", "p", "", "Profile path to inspect (default: ADDRNORM_PROFILE or search)")
	c.Flags().StringVar(&format, "format", "pretty", "Output format: pretty|json")
	return c
}

func printProfile(w io.Writer, st rules.Stats, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "pretty", "":
		path := st.Path
		if path == "" {
			path = "(none found)"
		}
		fmt.Fprintf(w, "Profile:       %s\n", path)
		fmt.Fprintf(w, "Loaded:        %v\n", st.Loaded)
		if st.StreetAbbrPath != "" {
			fmt.Fprintf(w, "Street abbr:   %s\n", st.StreetAbbrPath)
		}
		fmt.Fprintf(w, "Countries:     %d (%d aliases)\n", st.Countries, st.CountryAliases)
		fmt.Fprintf(w, "ZIP patterns:  %d countries\n", st.ZipCountries)
		fmt.Fprintf(w, "Region tables: %d\n", st.RegionTables)
		fmt.Fprintf(w, "Abbreviations: %d latin, %d cyrillic\n", st.LatinAbbr, st.CyrillicAbbr)
		return nil
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
}
