package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/campusdesk/desk/internal/api"
	"github.com/campusdesk/desk/internal/session"
	"github.com/campusdesk/desk/internal/types"
	"github.com/spf13/cobra"
)

// NewLoginCmd creates the login command.
func NewLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			email, _ := cmd.Flags().GetString("email")
			passwordStdin, _ := cmd.Flags().GetBool("password-stdin")

			p := newPrompter(cmd)
			if strings.TrimSpace(email) == "" {
				if email, err = p.line("Email: "); err != nil {
					return writeCommandError(cmd, err)
				}
			}
			var password string
			if passwordStdin {
				password, err = p.line("")
			} else {
				password, err = p.password("Password: ")
			}
			if err != nil {
				return writeCommandError(cmd, err)
			}

			creds, err := ctx.API.Login(cmd.Context(), email, password)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if err := ctx.Session.Login(creds); err != nil {
				return writeCommandError(cmd, err)
			}
			ctx.RefreshIdentity(cmd.Context())

			identity := ctx.Session.Identity()
			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(identity)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", describeIdentity(identity))
			return nil
		},
	}

	cmd.Flags().String("email", "", "account email")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	return cmd
}

// NewSignupCmd creates the signup command.
func NewSignupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			studentNum, _ := cmd.Flags().GetInt64("student-num")
			passwordStdin, _ := cmd.Flags().GetBool("password-stdin")

			p := newPrompter(cmd)
			var password string
			if passwordStdin {
				password, err = p.line("")
			} else {
				password, err = p.password("Password: ")
				if err == nil {
					var confirm string
					if confirm, err = p.password("Confirm password: "); err == nil {
						err = api.ValidatePasswordChange(password, confirm)
					}
				}
			}
			if err != nil {
				return writeCommandError(cmd, err)
			}

			userID, err := ctx.API.Signup(cmd.Context(), api.SignupRequest{
				Email:      email,
				Password:   password,
				Name:       name,
				StudentNum: studentNum,
			})
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]int64{"userId": userID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created (user %d). Run 'desk login' to sign in.\n", userID)
			return nil
		},
	}

	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().Int64("student-num", 0, "student number")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	return cmd
}

// NewLogoutCmd creates the logout command.
func NewLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			creds := ctx.Session.Credentials()
			if creds.RefreshToken != "" {
				// Local state is cleared even when the server call fails.
				if err := ctx.API.Logout(cmd.Context(), creds.RefreshToken); err != nil {
					ctx.Logger.Warn("server logout failed", "err", err)
				}
			}
			if err := ctx.Session.Logout(); err != nil {
				return writeCommandError(cmd, err)
			}
			if err := ctx.ForgetUserData(); err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]bool{"logged_out": true})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}

	return cmd
}

// NewWhoamiCmd creates the whoami command.
func NewWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if err := ctx.RequireLogin(); err != nil {
				return writeCommandError(cmd, err)
			}
			refresh, _ := cmd.Flags().GetBool("refresh")
			if refresh {
				profile, err := ctx.API.Me(cmd.Context())
				if err != nil {
					return writeCommandError(cmd, err)
				}
				ctx.Session.ApplyProfile(profile)
			}

			identity := ctx.Session.Identity()
			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(identity)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, describeIdentity(identity))
			if identity.StudentNum != "" {
				fmt.Fprintf(out, "  student number: %s\n", identity.StudentNum)
			}
			return nil
		},
	}

	cmd.Flags().Bool("refresh", false, "reload the profile from the server")

	return cmd
}

// NewProfileCmd creates the profile command group.
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage your profile",
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Update name, email or student number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if err := ctx.RequireLogin(); err != nil {
				return writeCommandError(cmd, err)
			}
			userID, identity, err := currentUser(cmd, ctx)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			info := api.UserInfo{Email: identity.Email, Name: identity.Name}
			if identity.StudentNum != "" {
				info.StudentNum, _ = strconv.ParseInt(identity.StudentNum, 10, 64)
			}
			update := session.ProfileUpdate{}
			if cmd.Flags().Changed("name") {
				name, _ := cmd.Flags().GetString("name")
				info.Name = name
				update.Name = &info.Name
			}
			if cmd.Flags().Changed("email") {
				email, _ := cmd.Flags().GetString("email")
				info.Email = email
				update.Email = &info.Email
			}
			if cmd.Flags().Changed("student-num") {
				num, _ := cmd.Flags().GetInt64("student-num")
				info.StudentNum = num
				formatted := strconv.FormatInt(num, 10)
				update.StudentNum = &formatted
			}
			if update == (session.ProfileUpdate{}) {
				return writeCommandError(cmd, fmt.Errorf("nothing to update: pass --name, --email or --student-num"))
			}

			if err := ctx.API.UpdateUserInfo(cmd.Context(), userID, info); err != nil {
				return writeCommandError(cmd, err)
			}
			ctx.Session.UpdateUserInfo(update)

			updated := ctx.Session.Identity()
			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(updated)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile updated: %s\n", describeIdentity(updated))
			return nil
		},
	}
	set.Flags().String("name", "", "new display name")
	set.Flags().String("email", "", "new email")
	set.Flags().Int64("student-num", 0, "new student number")

	cmd.AddCommand(set)
	return cmd
}

// NewPasswdCmd creates the passwd command.
func NewPasswdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if err := ctx.RequireLogin(); err != nil {
				return writeCommandError(cmd, err)
			}
			userID, _, err := currentUser(cmd, ctx)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			p := newPrompter(cmd)
			password, err := p.password("New password: ")
			if err != nil {
				return writeCommandError(cmd, err)
			}
			confirm, err := p.password("Confirm password: ")
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if err := ctx.API.ChangePassword(cmd.Context(), userID, password, confirm); err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]bool{"changed": true})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed")
			return nil
		},
	}

	return cmd
}

// currentUser resolves the numeric user id, asking the server when the
// token carries none.
func currentUser(cmd *cobra.Command, ctx *CommandContext) (int64, types.Identity, error) {
	identity := ctx.Session.Identity()
	if id, err := strconv.ParseInt(identity.ID, 10, 64); err == nil && id > 0 {
		return id, identity, nil
	}
	profile, err := ctx.API.Me(cmd.Context())
	if err != nil {
		return 0, identity, err
	}
	ctx.Session.ApplyProfile(profile)
	identity = ctx.Session.Identity()
	id := profile.EffectiveID()
	if id == 0 {
		return 0, identity, fmt.Errorf("could not determine your user id")
	}
	return id, identity, nil
}
