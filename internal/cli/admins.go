package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/allankoechke/mantis/internal/config"
	"github.com/allankoechke/mantis/internal/dbpool"
	"github.com/allankoechke/mantis/internal/entity"
	"github.com/allankoechke/mantis/internal/files"
	"github.com/allankoechke/mantis/internal/mlog"
	"github.com/allankoechke/mantis/internal/validators"
)

// adminsCmd implements `admins --add <email>` / `admins --rm <id-or-email>`,
// via a silent password prompt.
func adminsCmd(cfg *config.Config) *cobra.Command {
	var add string
	var rm string

	cmd := &cobra.Command{
		Use:   "admins",
		Short: "Manage administrator accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if add == "" && rm == "" {
				return errors.New("specify --add <email> or --rm <id-or-email>")
			}

			ent, pool, err := openAdminsEntity(cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx := cmd.Context()

			if add != "" {
				return addAdmin(ctx, ent, add)
			}

			return removeAdmin(ctx, ent, rm)
		},
	}

	cmd.Flags().StringVar(&add, "add", "", "create an admin account with the given email")
	cmd.Flags().StringVar(&rm, "rm", "", "remove the admin account matching the given id or email")

	return cmd
}

func openAdminsEntity(cfg *config.Config) (*entity.Entity, *dbpool.Pool, error) {
	dialect, err := dialectFromFlag(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	log := &mlog.NoneLogger{}

	pool, err := dbpool.Open(dialect, cfg.ConnectionString, int(cfg.PoolSize), log)
	if err != nil {
		return nil, nil, err
	}

	if err := dbpool.Bootstrap(context.Background(), pool, log); err != nil {
		pool.Close()
		return nil, nil, err
	}

	store := files.NewStore(cfg.DataDir, log)

	for _, s := range dbpool.SystemSchemas() {
		if s.Name == "_admins" {
			return entity.New(s, pool, store, log), pool, nil
		}
	}

	pool.Close()

	return nil, nil, errors.New("_admins schema not found")
}

// adminCredentials is validated as a unit via validators.ValidateStruct,
// so the email and password presets run through the same validator.v9
// instance as the struct-tag path.
type adminCredentials struct {
	Email    string `validate:"required,email_preset"`
	Password string `validate:"required,password_preset"`
}

func addAdmin(ctx context.Context, ent *entity.Entity, email string) error {
	fmt.Print("Password: ")

	pw1, err := term.ReadPassword(0)
	fmt.Println()

	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	if err := validators.ValidateStruct(adminCredentials{Email: email, Password: string(pw1)}); err != nil {
		return err
	}

	fmt.Print("Confirm password: ")

	pw2, err := term.ReadPassword(0)
	fmt.Println()

	if err != nil {
		return fmt.Errorf("reading password confirmation: %w", err)
	}

	if string(pw1) != string(pw2) {
		return errors.New("passwords do not match")
	}

	hash, err := bcrypt.GenerateFromPassword(pw1, bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if _, err := ent.Create(ctx, map[string]any{
		"email":    email,
		"password": string(hash),
	}); err != nil {
		return err
	}

	fmt.Printf("admin %s created\n", email)

	return nil
}

func removeAdmin(ctx context.Context, ent *entity.Entity, idOrEmail string) error {
	rec, found, err := ent.QueryFromCols(ctx, idOrEmail, []string{"id", "email"})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no admin matching %q", idOrEmail)
	}

	id, _ := rec["id"].(string)

	if err := ent.Remove(ctx, id); err != nil {
		return err
	}

	fmt.Printf("admin %s removed\n", idOrEmail)

	return nil
}
