package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/ozzie/internal/secrets"
)

// NewKeygenCommand returns the subcommand that provisions the age identity
// used to seal spelling-sensitive questionnaire answers.
func NewKeygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate the age identity used to seal spelling-sensitive answers",
		Action: func(_ context.Context, _ *cli.Command) error {
			path := secrets.KeyPath()
			if err := secrets.GenerateIdentity(path); err != nil {
				return fmt.Errorf("generate identity: %w", err)
			}
			fmt.Println(path)
			return nil
		},
	}
}
