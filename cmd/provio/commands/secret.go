package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/provio/provio/pkg/engine"
	"github.com/provio/provio/pkg/secrets"
	"github.com/provio/provio/pkg/telemetry"
)

func newSecretCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Publish and inspect vault secrets",
	}

	cmd.AddCommand(newSecretPublishCommand())
	cmd.AddCommand(newSecretShowCommand())

	return cmd
}

func newSecretPublishCommand() *cobra.Command {
	var (
		resource  string
		role      string
		mode      string
		generator string
		length    int
		value     string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a secret to the vault",
		Long: `Publish one secret under its derived name "{resource}-{role}", with the
same semantics a deployment uses: reuse mode keeps an existing value,
regenerate replaces it, and every write is verified by reading the value
back.`,
		Example: `  # Ensure a token exists, reusing any present value
  provio secret publish --resource app --role client-secret

  # Rotate an ssh keypair
  provio secret publish --resource bastion --role ssh-key \
      --generator ssh-keypair --mode regenerate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := setupTelemetry()
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(ctx) }()

			vault, err := openVault(true)
			if err != nil {
				return err
			}

			publisher := secrets.NewPublisher(vault, tel.Logger)
			receipt, err := publisher.Publish(ctx, engine.SecretRequest{
				Name:      engine.SecretName(resource, role),
				Mode:      engine.SecretMode(mode),
				Generator: engine.SecretGenerator(generator),
				Length:    length,
				Value:     value,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(receipt)
			}

			verb := "published"
			if receipt.Reused {
				verb = "reused"
			}
			fmt.Printf("Secret %s %s (version %d)\n", receipt.Name, verb, receipt.Version)
			if receipt.PublicMaterial != "" {
				fmt.Printf("Public material:\n%s", receipt.PublicMaterial)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&resource, "resource", "", "owning resource name")
	cmd.Flags().StringVar(&role, "role", "", "secret role, e.g. client-secret")
	cmd.Flags().StringVar(&mode, "mode", string(engine.SecretModeReuse), "reuse or regenerate")
	cmd.Flags().StringVar(&generator, "generator", string(engine.GeneratorToken), "token or ssh-keypair")
	cmd.Flags().IntVar(&length, "length", 0, "token byte length (default 32)")
	cmd.Flags().StringVar(&value, "value", "", "publish this exact value instead of generating one")
	_ = cmd.MarkFlagRequired("resource")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

func newSecretShowCommand() *cobra.Command {
	var (
		resource string
		role     string
		name     string
		reveal   bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a vault secret's metadata",
		Long: `Show a secret's version and creation time. The value is masked to its
first characters unless --reveal is given.`,
		Example: `  # Inspect a secret by coordinates
  provio secret show --resource app --role client-secret

  # Print the full value
  provio secret show --name app-client-secret --reveal`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tel, err := setupTelemetry()
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(ctx) }()

			secretName := name
			if secretName == "" {
				if resource == "" || role == "" {
					return fmt.Errorf("either --name or both --resource and --role are required")
				}
				secretName = engine.SecretName(resource, role)
			}

			vault, err := openVault(true)
			if err != nil {
				return err
			}

			entry, err := vault.Read(ctx, secretName)
			if err != nil {
				return err
			}
			if entry == nil {
				return fmt.Errorf("secret %s not found", secretName)
			}

			shown := telemetry.SecretPreview(entry.Value)
			if reveal {
				shown = entry.Value
			}

			if jsonOutput {
				return printJSON(map[string]interface{}{
					"name":       entry.Name,
					"version":    entry.Version,
					"created_at": entry.CreatedAt,
					"value":      shown,
				})
			}

			fmt.Printf("Name:    %s\n", entry.Name)
			fmt.Printf("Version: %d\n", entry.Version)
			if !entry.CreatedAt.IsZero() {
				fmt.Printf("Created: %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			}
			fmt.Printf("Value:   %s\n", shown)
			return nil
		},
	}

	cmd.Flags().StringVar(&resource, "resource", "", "owning resource name")
	cmd.Flags().StringVar(&role, "role", "", "secret role")
	cmd.Flags().StringVar(&name, "name", "", "full secret name (overrides --resource/--role)")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the full secret value")

	return cmd
}
