package donation

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewCommand returns the "receipts" operator command.
func NewCommand(s *Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "Donation receipt maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reissue <paymentRef>",
		Short: "Assign (if needed) and email the receipt for a completed donation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := s.Issuer.Issue(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "receipt %s attached=%t emailed=%t", out.ReceiptNumber, out.Attached, out.Email.Success)
			if out.Email.Reason != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " reason=%s", out.Email.Reason)
			} else if out.Email.Error != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " error=%q", out.Email.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "backlog",
		Short: "Report completed donations without a receipt number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := s.CheckBacklog()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d donation(s) without a receipt\n", n)
			return nil
		},
	})
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
