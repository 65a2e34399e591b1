package command

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/campusdesk/desk/internal/api"
	"github.com/campusdesk/desk/internal/session"
	"github.com/spf13/cobra"
)

func writeCommandError(cmd *cobra.Command, err error) error {
	message := api.UserMessage(err)
	if errors.Is(err, session.ErrNotAuthenticated) {
		message = session.ErrNotAuthenticated.Error()
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", message)

	var apiErr *api.APIError
	switch {
	case isSchemaError(err):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: the local cache looks out of date. Remove desk.db from the state directory and log in again.")
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized:
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: your session may have expired. Try: desk login")
	}

	return err
}

// isSchemaError checks if an error is a SQLite schema mismatch.
func isSchemaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "has no column")
}
