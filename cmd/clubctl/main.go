// Command clubctl is the operator tool: schema migration, the first admin
// account, fee generation and token housekeeping.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/database"
	"github.com/stw-baltyk/baltyk-manager/internal/model"
	"github.com/stw-baltyk/baltyk-manager/internal/repository"
	"github.com/stw-baltyk/baltyk-manager/internal/service"
	"github.com/stw-baltyk/baltyk-manager/internal/utils"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clubctl",
		Short:         "Administration tool for the association backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd(), createAdminCmd(), generateFeesCmd(), purgeTokensCmd())
	return root
}

// withDB opens the database from DB_* variables for the duration of fn.
func withDB(fn func(db *sql.DB, cfg config.Config) error) error {
	cfg := config.LoadDB()
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db, cfg)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(db *sql.DB, _ config.Config) error {
				if err := database.Migrate(cmd.Context(), db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}

func createAdminCmd() *cobra.Command {
	var email, first, last, passwordFile string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an ADMIN account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(passwordFile)
			if err != nil {
				return err
			}
			if err := utils.CheckPassword(password); err != nil {
				return err
			}
			return withDB(func(db *sql.DB, cfg config.Config) error {
				u := &model.User{
					Email:     strings.ToLower(strings.TrimSpace(email)),
					FirstName: first,
					LastName:  last,
					Role:      model.RoleAdmin,
				}
				if err := repository.NewUserRepo(db).Create(cmd.Context(), u, password, cfg.BcryptCost); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %d)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login e-mail")
	cmd.Flags().StringVar(&first, "first-name", "Admin", "first name")
	cmd.Flags().StringVar(&last, "last-name", "", "last name")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from a file instead of prompting")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword prompts on the terminal with echo disabled unless a file is
// given.
func readPassword(file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal for the password prompt (use --password-file)")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func generateFeesCmd() *cobra.Command {
	var feeType uint64
	var due string
	cmd := &cobra.Command{
		Use:   "generate-fees",
		Short: "Charge every active member for a fee type's current period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var dueDate *time.Time
			if due != "" {
				d, err := model.ParseDate(due)
				if err != nil {
					return fmt.Errorf("--due-date: %w", err)
				}
				dueDate = &d
			}
			return withDB(func(db *sql.DB, cfg config.Config) error {
				ledger := service.NewLedger(db, nil, service.NewClock(cfg.Location))
				res, err := ledger.Generate(cmd.Context(), feeType, dueDate)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d\n", res.Created, res.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&feeType, "fee-type", 0, "fee type id")
	cmd.Flags().StringVar(&due, "due-date", "", "due date (YYYY-MM-DD); defaults to the fee type's rule")
	_ = cmd.MarkFlagRequired("fee-type")
	return cmd
}

func purgeTokensCmd() *cobra.Command {
	var keep time.Duration
	cmd := &cobra.Command{
		Use:   "purge-tokens",
		Short: "Delete expired refresh tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(func(db *sql.DB, _ config.Config) error {
				n, err := repository.NewTokenRepo(db).PurgeExpired(cmd.Context(), time.Now().UTC().Add(-keep))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d tokens\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&keep, "keep", 0, "keep tokens that expired within this window")
	return cmd
}
