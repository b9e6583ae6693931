package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mind-engage/examdesk/internal/db"
	"github.com/mind-engage/examdesk/internal/mongostore"
	"github.com/mind-engage/examdesk/internal/users"
)

var readPasswordFunc = term.ReadPassword // mockable

var errEmptyPassword = errors.New("empty password")

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing tables, collections and indexes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		if db.Driver(cfg.DBDriver) == db.DriverMongo {
			client, _, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
			if err != nil {
				return err
			}
			return client.Disconnect(ctx)
		}
		sqlDB, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.DBDriver)
		return sqlDB.Close()
	},
}

var addUserCmd = &cobra.Command{
	Use:   "adduser USERNAME",
	Short: "Create an account; the password is prompted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		pw, err := promptPassword(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			u, err := a.users.Create(ctx, users.NewUser{
				Username:    args[0],
				Email:       email,
				DisplayName: name,
				Role:        role,
				Password:    pw,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", u.Username, u.Role, u.ID)
			return nil
		})
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "resetpassword USERNAME",
	Short: "Set a new password for an account; the password is prompted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := promptPassword(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.users.ResetPassword(ctx, args[0], pw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", args[0])
			return nil
		})
	},
}

func init() {
	addUserCmd.Flags().String("role", "student", "admin, staff or student")
	addUserCmd.Flags().String("email", "", "email address")
	addUserCmd.Flags().String("name", "", "display name")
}

// withApp runs fn against a wired app that only logs notifications.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

// promptPassword reads without echo from a terminal, or one line from a
// pipe.
func promptPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(cmd.InOrStdin())
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
	pw, err := readPasswordFunc(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	if len(pw) == 0 {
		return "", errEmptyPassword
	}
	return string(pw), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errEmptyPassword
	}
	return line, nil
}
