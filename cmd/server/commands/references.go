package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Indy1131/kotoba/internal/reference"
)

var (
	referencesSpeaker string
	referencesJSON    bool
)

var referencesCmd = &cobra.Command{
	Use:   "references",
	Short: "Print vowel reference formants",
	Long: `Print the vowel reference table served by /api/audio/formant-references.
The table comes from reference.path in the configuration, or the built-in one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		catalog, err := reference.Load(cfg.Reference.Path)
		if err != nil {
			return err
		}

		profile, err := catalog.Lookup(referencesSpeaker)
		if err != nil {
			return fmt.Errorf("%w (available: %v)", err, catalog.Speakers())
		}

		if referencesJSON {
			return printJSON(cmd.OutOrStdout(), profile)
		}
		return printProfile(cmd.OutOrStdout(), profile)
	},
}

func init() {
	referencesCmd.Flags().StringVar(&referencesSpeaker, "speaker", reference.DefaultSpeaker, "speaker type")
	referencesCmd.Flags().BoolVar(&referencesJSON, "json", false, "print the profile as JSON")
	rootCmd.AddCommand(referencesCmd)
}

func printProfile(w io.Writer, profile reference.Profile) error {
	fmt.Fprintf(w, "speaker: %s\nF1 axis: %v  F2 axis: %v  inverted: %t\n\n",
		profile.Speaker, profile.Plot.F1Range, profile.Plot.F2Range, profile.Plot.InvertAxes)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VOWEL\tF1\tF2")
	for _, v := range profile.Vowels {
		fmt.Fprintf(tw, "%s\t%.0f\t%.0f\n", v.Symbol, v.F1, v.F2)
	}
	return tw.Flush()
}
