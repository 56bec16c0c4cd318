package main

import (
	"fmt"

	"alcyxob/notes-app/internal/domain"
	"alcyxob/notes-app/internal/service"

	"github.com/spf13/cobra"
)

func adminCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative account tasks",
	}

	var username, email, password string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.openDatabases(); err != nil {
				return err
			}

			auth := service.NewAuthService(a.store.Users(), a.cfg.JWT.Secret, a.cfg.JWT.Expiration)
			user, err := auth.Register(cmd.Context(), username, email, password, domain.RoleAdmin)
			if err != nil {
				return err
			}
			fmt.Printf("created admin %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	create.Flags().StringVar(&username, "username", "", "admin username")
	create.Flags().StringVar(&email, "email", "", "admin email")
	create.Flags().StringVar(&password, "password", "", "admin password")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")
	_ = create.MarkFlagRequired("username")

	cmd.AddCommand(create)
	return cmd
}
