package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sfextract/pkg/credentials"
	"sfextract/pkg/ui"
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "Manage stored client credentials",
	Long: `Manage named client credential profiles.

Profiles are kept in the system keychain when one is available, otherwise in
an encrypted file under the user config directory. SFEXTRACT_<PROFILE>_CLIENT_ID
and SFEXTRACT_<PROFILE>_CLIENT_SECRET are read as a last resort.`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set [profile]",
	Short: "Store a credentials profile (default: \"default\")",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCredentialsSet,
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	Args:  cobra.NoArgs,
	RunE:  runCredentialsList,
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete <profile>",
	Short: "Delete a stored profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsDelete,
}

var (
	credClientID  string
	credCompanyID string
	credUserID    string
)

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsListCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)

	credentialsSetCmd.Flags().StringVar(&credClientID, "client-id", "", "client ID (prompted when omitted)")
	credentialsSetCmd.Flags().StringVar(&credCompanyID, "company-id", "", "company ID")
	credentialsSetCmd.Flags().StringVar(&credUserID, "user-id", "", "technical user ID")
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	name := "default"
	if len(args) == 1 {
		name = strings.TrimSpace(args[0])
	}

	reader := bufio.NewReader(os.Stdin)
	clientID := credClientID
	if clientID == "" {
		fmt.Print("Client ID: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read client ID: %w", err)
		}
		clientID = strings.TrimSpace(line)
	}

	fmt.Print("Client secret: ")
	secret, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read client secret: %w", err)
	}

	manager, err := newCredentialManager()
	if err != nil {
		return err
	}
	profile := &credentials.Profile{
		Name:         name,
		ClientID:     clientID,
		ClientSecret: secret,
		CompanyID:    credCompanyID,
		UserID:       credUserID,
		LastModified: time.Now(),
	}
	if err := manager.Store(profile); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	ui.PrintSuccess("Credentials stored for profile " + name)
	fmt.Printf("\nUse them with:\n  sfextract run --profile %s\n", name)
	return nil
}

func runCredentialsList(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return err
	}
	profiles, err := manager.List()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		ui.PrintWarning("No stored profiles")
		fmt.Println("\nStore one with:\n  sfextract credentials set")
		return nil
	}

	for _, p := range profiles {
		masked := credentials.Sanitize(p)
		line := fmt.Sprintf("%s  client=%s secret=%s", ui.Cyan(masked.Name), masked.ClientID, masked.ClientSecret)
		if masked.CompanyID != "" {
			line += " company=" + masked.CompanyID
		}
		if !masked.LastModified.IsZero() {
			line += ui.Dim(" (updated " + masked.LastModified.Format("2006-01-02 15:04") + ")")
		}
		fmt.Println(line)
	}
	return nil
}

func runCredentialsDelete(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return err
	}
	if err := manager.Delete(args[0]); err != nil {
		return err
	}
	ui.PrintSuccess("Deleted profile " + args[0])
	return nil
}

// readSecret reads a secret from stdin without echoing
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	// Piped input
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
