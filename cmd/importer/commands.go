package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/importer"
	"github.com/noah-isme/gradebook-api/internal/repository"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/pkg/database"
)

func newMigrateCmd(rt *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rt.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			return database.RunMigrations(db.DB, rt.logger)
		},
	}
}

func newSeedAdminCmd(rt *app) *cobra.Command {
	var username, name, password string

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an admin login if the username is free",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			db, err := rt.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			auth := service.NewAuthService(repository.NewUserRepository(db), validator.New(), rt.logger, service.AuthConfig{})
			created, err := auth.SeedAdmin(cmd.Context(), username, name, password)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "admin %q created\n", username)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "admin %q already exists\n", username)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "login name")
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to username)")
	cmd.Flags().StringVar(&password, "password", "", "password (falls back to ADMIN_PASSWORD)")
	return cmd
}

func newWorkbookCmd(rt *app) *cobra.Command {
	var (
		file         string
		studentYear  int
		studentGroup string
		locale       string
	)

	cmd := &cobra.Command{
		Use:   "workbook",
		Short: "Import teachers, students and subjects from an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			if locale == "" {
				locale = rt.cfg.Import.Locale
			}
			layout := importer.LayoutFor(locale)

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open workbook: %w", err)
			}
			defer f.Close()
			sheets, err := importer.OpenWorkbook(f, layout)
			if err != nil {
				return err
			}

			db, err := rt.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			svc := service.NewImportService(service.ImportRepositories{
				Teachers: repository.NewTeacherRepository(db),
				Users:    repository.NewUserRepository(db),
				Groups:   repository.NewGroupRepository(db),
				Students: repository.NewStudentRepository(db),
				Subjects: repository.NewSubjectRepository(db),
			}, importer.NewNormalizer(layout, rt.cfg.Import.MaxRows, rt.cfg.Import.DefaultYear), rt.cfg.Import.BcryptCost, validator.New(), nil, rt.logger)

			result, err := svc.ImportWorkbook(cmd.Context(), sheets, dto.WorkbookImportOptions{
				Filename:     filepath.Base(file),
				StudentYear:  studentYear,
				StudentGroup: studentGroup,
				RequestedBy:  "cli",
			})
			if err != nil {
				return err
			}

			for _, kind := range result.Kinds() {
				fmt.Fprintln(cmd.ErrOrStderr(), kind.Message)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the workbook")
	cmd.Flags().IntVar(&studentYear, "student-year", 0, "admission year applied to student rows")
	cmd.Flags().StringVar(&studentGroup, "student-group", "", "group label applied to student rows")
	cmd.Flags().StringVar(&locale, "locale", "", "header locale (ja or en), defaults to IMPORT_LOCALE")
	return cmd
}
