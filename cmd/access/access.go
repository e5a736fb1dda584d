// Package access implements the account access check.
package access

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"deliverect-tools/catalog-importer/cmd/common"
	"deliverect-tools/catalog-importer/cmd/root"
	"deliverect-tools/catalog-importer/internal/importerror"
	"deliverect-tools/catalog-importer/internal/logging"
	"deliverect-tools/catalog-importer/internal/models"
)

// AccountValidator checks that an account can be imported into.
type AccountValidator interface {
	ValidateAccountAccess(ctx context.Context, accountID string) (models.Account, error)
	DeveloperAccountID() string
}

// Cmd represents the access command
var Cmd = &cobra.Command{
	Use:   "access",
	Short: "Check that an account is linked to the developer account",
	Long: `Check that an account is linked to the developer account.

Prints the account name on success. When the account is not linked, the
message names the developer account it must be linked to.`,
	RunE: accessFunc,
}

func accessFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}
	if err := common.RequireFlag("account", root.SharedFlags.Account); err != nil {
		return err
	}
	client, err := c.GetClient()
	if err != nil {
		return err
	}
	return Check(cmd.Context(), client, root.SharedFlags.Account, cmd.OutOrStdout(), c.GetLogger())
}

// Check validates accountID and prints the outcome to out.
func Check(ctx context.Context, v AccountValidator, accountID string, out io.Writer, log logging.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	acc, err := v.ValidateAccountAccess(ctx, accountID)
	if err != nil {
		var accessErr *importerror.AccessError
		if errors.As(err, &accessErr) && accessErr.Kind == importerror.AccessUnlinked {
			fmt.Fprintf(out, "Account %s is not linked. Link it to developer account %s and try again.\n",
				accountID, v.DeveloperAccountID())
		}
		log.WithError(err).Error("Account check failed", logging.F(logging.FieldAccountID, accountID))
		return err
	}

	name := acc.Name
	if name == "" {
		name = "(no name)"
	}
	fmt.Fprintf(out, "Account %s: %s\n", acc.ID, name)
	log.Info("Account is accessible",
		logging.F(logging.FieldAccountID, acc.ID),
		logging.F(logging.FieldAccountName, acc.Name))
	return nil
}
