package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alisonjoe/unsplash-downloader/pkg/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Unsplash API credentials",
	Long: `Manage stored Unsplash API credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (UNSPLASH_ACCESS_KEY)

Get an access key by registering an application at
https://unsplash.com/developers.`,
}

var authSetCmd = &cobra.Command{
	Use:   "set [label]",
	Short: "Store an Unsplash access key securely",
	Long: `Store an Unsplash access key in the system keychain or an encrypted file.

The key is read from stdin without echoing. If no label is provided the
key is stored under the default label and used by all fetch runs.`,
	Example: `  # Store the default key
  unsplash-downloader auth set

  # Store a key under a named label
  unsplash-downloader auth set work`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthSet,
}

var authShowCmd = &cobra.Command{
	Use:   "show [label]",
	Short: "Show a stored access key (masked)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthShow,
}

var authRemoveCmd = &cobra.Command{
	Use:   "remove [label]",
	Short: "Remove a stored access key",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthRemove,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials",
	RunE:  runAuthList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(authRemoveCmd)
	authCmd.AddCommand(authListCmd)
}

func labelArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return auth.DefaultLabel
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	label := labelArg(args)

	if existing, _ := manager.Retrieve(label); existing != nil {
		reader := bufio.NewReader(os.Stdin)
		fmt.Printf("A key is already stored under '%s'. Replace it? (y/N): ", label)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("Unsplash access key (input hidden): ")
	key, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read access key: %w", err)
	}
	if key == "" {
		return errors.New("access key must not be empty")
	}

	cred := &auth.Credential{
		Label:        label,
		AccessKey:    key,
		LastModified: time.Now(),
	}
	if err := manager.Store(cred); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	fmt.Printf("Stored access key %s under '%s'.\n", auth.MaskKey(key), label)
	return nil
}

func runAuthShow(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	label := labelArg(args)
	cred, err := manager.Retrieve(label)
	if err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			return fmt.Errorf("no access key stored under '%s'; run 'unsplash-downloader auth set'", label)
		}
		return err
	}

	fmt.Printf("Label:      %s\n", cred.Label)
	fmt.Printf("Access key: %s\n", auth.MaskKey(cred.AccessKey))
	if !cred.LastModified.IsZero() {
		fmt.Printf("Modified:   %s\n", cred.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	label := labelArg(args)
	if err := manager.Delete(label); err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			return fmt.Errorf("no access key stored under '%s'", label)
		}
		return fmt.Errorf("failed to remove credentials: %w", err)
	}

	fmt.Printf("Removed access key '%s'.\n", label)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	creds, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	if len(creds) == 0 {
		fmt.Println("No stored credentials. Use 'unsplash-downloader auth set' to add one.")
		return nil
	}

	for _, cred := range creds {
		fmt.Printf("%s\t%s\t%s\n",
			cred.Label, auth.MaskKey(cred.AccessKey),
			cred.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// readSecret reads a line from stdin without echoing when attached to a terminal
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
