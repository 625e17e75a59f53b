package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/netdeploy/internal/auth"
	"github.com/dl-alexandre/netdeploy/internal/config"
	"github.com/dl-alexandre/netdeploy/internal/utils"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage the personal access token used to talk to the deploy service",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a personal access token",
	Long:  "Store a personal access token for the current profile. Without --token the token is read from stdin.",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Long:  "Delete stored credentials for the current or specified profile",
	Args:  cobra.NoArgs,
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  "Show which credential would be used and where it comes from",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

var (
	authToken         string
	authEncryptedFile bool
	authPlainFile     bool
)

func init() {
	authLoginCmd.Flags().StringVar(&authToken, "token", "", "Personal access token")
	for _, c := range []*cobra.Command{authLoginCmd, authLogoutCmd, authStatusCmd} {
		c.Flags().BoolVar(&authEncryptedFile, "encrypted-file", false, "Use encrypted file storage instead of the system keyring")
		c.Flags().BoolVar(&authPlainFile, "plain-file", false, "Use unencrypted file storage (development only)")
	}

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func authManagerFromFlags() (*auth.Manager, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	return auth.NewManagerWithOptions(dir, auth.ManagerOptions{
		ForceEncryptedFile: authEncryptedFile,
		ForcePlainFile:     authPlainFile,
	}), nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr, err := authManagerFromFlags()
	if err != nil {
		return out.Fail("auth.login", err)
	}
	if warning := mgr.GetStorageWarning(); warning != "" {
		out.Log("%s", warning)
	}

	token := authToken
	if token == "" {
		out.Log("Paste a personal access token and press Enter:")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return out.WriteError("auth.login", utils.NewCLIError(utils.ErrCodeInvalidArgument,
				fmt.Sprintf("could not read token: %v", err)).Build())
		}
		token = strings.TrimSpace(line)
	}

	if err := mgr.SaveToken(flags.Profile, token); err != nil {
		return out.Fail("auth.login", err)
	}

	out.Log("Token stored for profile '%s' in %s", flags.Profile, mgr.GetStorageBackend())
	return out.WriteSuccess("auth.login", map[string]string{
		"profile": flags.Profile,
		"storage": mgr.GetStorageBackend(),
	})
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr, err := authManagerFromFlags()
	if err != nil {
		return out.Fail("auth.logout", err)
	}
	if err := mgr.DeleteToken(flags.Profile); err != nil {
		return out.Fail("auth.logout", err)
	}

	out.Log("Removed credentials for profile '%s'", flags.Profile)
	return out.WriteSuccess("auth.logout", map[string]string{
		"profile": flags.Profile,
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr, err := authManagerFromFlags()
	if err != nil {
		return out.Fail("auth.status", err)
	}
	profiles, err := mgr.ListProfiles()
	if err != nil {
		out.AddWarning("PROFILE_LIST", err.Error(), "warning")
	}

	status := map[string]string{
		"profile":       flags.Profile,
		"storage":       mgr.GetStorageBackend(),
		"profiles":      strings.Join(profiles, ","),
		"authenticated": "false",
	}
	if resolved, err := mgr.ResolveToken(flags.Token, flags.Profile); err == nil {
		status["authenticated"] = "true"
		status["source"] = resolved.Source
		status["token"] = maskToken(resolved.Token)
	}
	if _, ok := os.LookupEnv(utils.EnvAuthToken); ok {
		status["env"] = utils.EnvAuthToken
	}
	return out.WriteSuccess("auth.status", status)
}

// maskToken keeps only enough of a token to tell two apart.
func maskToken(t string) string {
	if len(t) <= 8 {
		return strings.Repeat("*", len(t))
	}
	return t[:4] + strings.Repeat("*", len(t)-8) + t[len(t)-4:]
}
