package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ninebox-hr/ninebox-shell/internal/prompt"
	"github.com/ninebox-hr/ninebox-shell/internal/secret"
)

const secretTimeout = 30 * time.Second

// getSecretCommand returns the secret management command. Stored secrets are
// referenced from the runtime config as ${keyring:<name>}.
func getSecretCommand() *cobra.Command {
	secretCmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets referenced by the backend runtime config",
	}

	secretCmd.AddCommand(getSecretSetCommand())
	secretCmd.AddCommand(getSecretGetCommand())
	secretCmd.AddCommand(getSecretProvidersCommand())

	return secretCmd
}

func getSecretSetCommand() *cobra.Command {
	var (
		secretType string
		fromEnv    string
	)

	cmd := &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a secret in the OS keyring",
		Long:  "Store a secret in the OS keyring. If no value is given, it is read from the terminal without echo.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			var value string

			switch {
			case len(args) == 2:
				value = args[1]
			case fromEnv != "":
				value = os.Getenv(fromEnv)
				if value == "" {
					return fmt.Errorf("environment variable %s is not set or empty", fromEnv)
				}
			default:
				p := prompt.NewPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
				var err error
				value, err = p.PromptSecret("Enter secret value: ")
				if err != nil {
					return fmt.Errorf("failed to read secret: %w", err)
				}
			}

			value = strings.TrimSpace(value)
			if value == "" {
				return fmt.Errorf("secret value cannot be empty")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), secretTimeout)
			defer cancel()

			ref := secret.Ref{Provider: secretType, Key: name}
			if err := secret.NewResolver().Store(ctx, ref, value); err != nil {
				return fmt.Errorf("failed to store secret: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Secret '%s' stored in %s\n", name, secretType)
			fmt.Fprintf(cmd.OutOrStdout(), "Use in runtime config: %s\n", ref)
			return nil
		},
	}

	cmd.Flags().StringVar(&secretType, "type", secret.ProviderKeyring, "Secret provider type")
	cmd.Flags().StringVar(&fromEnv, "from-env", "", "Read value from environment variable")

	return cmd
}

func getSecretGetCommand() *cobra.Command {
	var (
		secretType string
		masked     bool
	)

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show a stored secret (masked by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), secretTimeout)
			defer cancel()

			ref := secret.Ref{Provider: secretType, Key: args[0]}
			value, err := secret.NewResolver().Resolve(ctx, ref)
			if err != nil {
				return fmt.Errorf("failed to retrieve secret: %w", err)
			}

			if masked {
				value = secret.Mask(value)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], value)
			return nil
		},
	}

	cmd.Flags().StringVar(&secretType, "type", secret.ProviderKeyring, "Secret provider type (keyring, env)")
	cmd.Flags().BoolVar(&masked, "masked", true, "Mask the secret value in output")

	return cmd
}

func getSecretProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List secret providers available on this system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range secret.NewResolver().Providers() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
