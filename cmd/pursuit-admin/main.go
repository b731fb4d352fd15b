// ABOUTME: Admin CLI for pursuit-gateway user and permission management
// ABOUTME: Operates directly on the configured database, no running server needed

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/pursuitworks/pursuit-gateway/internal/config"
	"github.com/pursuitworks/pursuit-gateway/internal/store"
)

const banner = `
                                 _ _                  _           _
 _ __  _   _ _ __ ___ _   _ _ __(_) |_        __ _  __| |_ __ ___ (_)_ __
| '_ \| | | | '__/ __| | | | '__| | __|_____ / _' |/ _' | '_ ' _ \| | '_ \
| |_) | |_| | |  \__ \ |_| | |  | | ||_____| (_| | (_| | | | | | | | | | |
| .__/ \__,_|_|  |___/\__,_|_|  |_|\__|      \__,_|\__,_|_| |_| |_|_|_| |_|
|_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "users":
		err = cmdUsers(args)
	case "grant":
		err = cmdGrant(args, true)
	case "revoke":
		err = cmdGrant(args, false)
	case "enable":
		err = cmdAccess(args, true)
	case "disable":
		err = cmdAccess(args, false)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: pursuit-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  users                       List all users")
	fmt.Println("  users list                  List all users")
	fmt.Println("  users add --email EMAIL     Create a user record (disabled by default)")
	fmt.Println("  users show <id|email>       Show a user and their permissions")
	fmt.Println("  enable <id|email>           Enable access for a user")
	fmt.Println("  disable <id|email>          Disable access for a user")
	fmt.Println("  grant <id|email> <tool>...  Grant tool permissions")
	fmt.Println("  revoke <id|email> <tool>... Revoke tool permissions")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  PURSUIT_CONFIG              Gateway config file (default: ~/.config/pursuit/gateway.yaml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  pursuit-admin users add --email dev@example.com --name 'Dev User'")
	fmt.Println("  pursuit-admin enable dev@example.com")
	fmt.Println("  pursuit-admin grant dev@example.com create_opportunity update_opportunity")
	fmt.Println("  pursuit-admin revoke dev@example.com delete_opportunity")
	fmt.Println()
	yellow.Println("Tools:")
	for _, t := range store.AllTools() {
		fmt.Printf("  %s\n", t)
	}
	fmt.Println()
}

// getConfigPath mirrors pursuit-gateway's lookup so both binaries
// read the same file.
func getConfigPath() string {
	if envPath := os.Getenv("PURSUIT_CONFIG"); envPath != "" {
		return envPath
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = homeDir + "/.config"
	}
	return configDir + "/pursuit/gateway.yaml"
}

func openStore() (store.Store, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.Driver == "postgres" {
		return store.NewPostgresStore(cfg.Database.DSN)
	}
	return store.NewSQLiteStore(cfg.Database.Path)
}

// findUser resolves an argument that is either a user id or an email.
func findUser(ctx context.Context, st store.Store, key string) (*store.User, error) {
	if strings.Contains(key, "@") {
		return st.GetUserByEmail(ctx, key, false)
	}
	return st.GetUserByID(ctx, key)
}

func cmdUsers(args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		return cmdUsersList()
	case "add":
		return cmdUsersAdd(args)
	case "show":
		if len(args) < 1 {
			return fmt.Errorf("usage: pursuit-admin users show <id|email>")
		}
		return cmdUsersShow(args[0])
	default:
		return fmt.Errorf("unknown users subcommand: %s", sub)
	}
}

func cmdUsersList() error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	users, err := st.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users.")
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tEMAIL\tNAME\tACCESS\tLAST LOGIN")
	fmt.Fprintln(w, "  --\t-----\t----\t------\t----------")

	for _, u := range users {
		access := "disabled"
		if u.AccessEnabled {
			access = "enabled"
		}
		lastLogin := "never"
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", truncate(u.ID, 12), u.Email, truncate(u.FullName, 24), access, lastLogin)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdUsersAdd(args []string) error {
	var email, name string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--email", "-e":
			if i+1 < len(args) {
				email = args[i+1]
				i++
			}
		case "--name", "-n":
			if i+1 < len(args) {
				name = args[i+1]
				i++
			}
		}
	}
	if email == "" {
		return fmt.Errorf("usage: pursuit-admin users add --email EMAIL [--name NAME]")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	user := &store.User{
		ID:            uuid.New().String(),
		Email:         email,
		FullName:      name,
		AccessEnabled: false,
		Permissions:   store.DefaultPermissions(),
	}
	if err := st.CreateUser(context.Background(), user); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	color.Green("Created user %s (%s)", user.ID, user.Email)
	fmt.Println("Access is disabled. Enable with: pursuit-admin enable " + user.Email)
	return nil
}

func cmdUsersShow(key string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	user, err := findUser(ctx, st, key)
	if err != nil {
		return fmt.Errorf("finding user: %w", err)
	}

	fmt.Println()
	fmt.Printf("ID:          %s\n", user.ID)
	fmt.Printf("Email:       %s\n", user.Email)
	fmt.Printf("Name:        %s\n", user.FullName)
	if user.ExternalID != "" {
		fmt.Printf("External ID: %s\n", user.ExternalID)
	}
	if user.AccessEnabled {
		fmt.Printf("Access:      %s\n", color.GreenString("enabled"))
	} else {
		fmt.Printf("Access:      %s\n", color.RedString("disabled"))
	}
	if user.LastLoginAt != nil {
		fmt.Printf("Last login:  %s\n", user.LastLoginAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("Permissions:")
	for _, t := range store.AllTools() {
		if user.Permissions.Allows(t) {
			fmt.Printf("  %s %s\n", color.GreenString("✓"), t)
		} else {
			fmt.Printf("  %s %s\n", color.HiBlackString("✗"), t)
		}
	}
	fmt.Println()

	return nil
}

func cmdAccess(args []string, enabled bool) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: pursuit-admin enable|disable <id|email>")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	user, err := findUser(ctx, st, args[0])
	if err != nil {
		return fmt.Errorf("finding user: %w", err)
	}

	if err := st.SetUserAccess(ctx, user.ID, enabled); err != nil {
		return fmt.Errorf("updating access: %w", err)
	}

	if enabled {
		color.Green("Enabled access for %s", user.Email)
	} else {
		color.Yellow("Disabled access for %s", user.Email)
	}
	return nil
}

func cmdGrant(args []string, allowed bool) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: pursuit-admin grant|revoke <id|email> <tool>...")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	user, err := findUser(ctx, st, args[0])
	if err != nil {
		return fmt.Errorf("finding user: %w", err)
	}

	perms := user.Permissions
	for _, name := range args[1:] {
		if !perms.Set(store.Tool(name), allowed) {
			return fmt.Errorf("unknown tool: %s", name)
		}
	}

	if err := st.SetUserPermissions(ctx, user.ID, perms); err != nil {
		return fmt.Errorf("updating permissions: %w", err)
	}

	verb := "Granted"
	if !allowed {
		verb = "Revoked"
	}
	color.Green("%s %s for %s", verb, strings.Join(args[1:], ", "), user.Email)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
