package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Jeffrey0117/Ytify/internal/classify"
)

func newClassifyCommand() *cobra.Command {
	var asJSON, list bool

	cmd := &cobra.Command{
		Use:   "classify <error text>",
		Short: "Show how a yt-dlp error would be classified and retried",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				return printPolicies(out)
			}
			if len(args) == 0 {
				return fmt.Errorf("classify: error text required")
			}
			_, policy := classify.Classify(strings.Join(args, " "))
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(policy)
			}
			fmt.Fprintf(out, "Category:  %s\n", policy.Category)
			fmt.Fprintf(out, "Message:   %s\n", policy.Message)
			fmt.Fprintf(out, "Retryable: %v\n", policy.Retryable)
			if policy.Retryable {
				fmt.Fprintf(out, "Retries:   %d (backoff %s, new proxy %v, lower quality %v)\n",
					policy.MaxRetries, policy.Backoff, policy.RotateEgress, policy.DowngradeQuality)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the policy as JSON")
	cmd.Flags().BoolVar(&list, "list", false, "List every category and its policy")
	return cmd
}

func printPolicies(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tRETRIES\tBACKOFF\tPROXY\tDOWNGRADE")
	for _, c := range classify.Categories() {
		p := classify.PolicyFor(c)
		fmt.Fprintf(tw, "%s\t%d\t%s\t%v\t%v\n", c, p.MaxRetries, p.Backoff, p.RotateEgress, p.DowngradeQuality)
	}
	return tw.Flush()
}
