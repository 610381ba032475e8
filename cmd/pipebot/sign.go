package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/scottdmilner/pipebot/internal/webhook"
)

func newSignCmd() *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Print the webhook signature header value for a payload",
		Long: "Compute the sha1= HMAC signature a sender must put in the endpoint's\n" +
			"signature header. The payload is read from file, or stdin when omitted.",
		Example: "  pipebot sign --secret \"$PIPEBOT_SECRET\" payload.json\n" +
			"  echo -n '{\"asset\":\"a\"}' | pipebot sign --secret s3cret",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}

			var body []byte
			var err error
			if len(args) == 1 {
				body, err = os.ReadFile(args[0])
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), webhook.Sign(body, secret))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Shared webhook secret")
	return cmd
}
