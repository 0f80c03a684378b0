package main

import (
	"fmt"
	"os"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/otcheredev/ris-viewer-manager/internal/repository"
	"github.com/otcheredev/ris-viewer-manager/internal/version"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v2"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Inspect and publish client release versions",
	}
	cmd.AddCommand(
		newVersionSplitCommand(),
		newVersionResolveCommand(),
		newVersionPublishCommand(),
	)
	return cmd
}

func newVersionSplitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "split <version>",
		Short: "Print the numeric part and the qualifier of a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !version.IsValid(args[0]) {
				return apperr.Newf(apperr.KindValidation, "version", "invalid version %q", args[0])
			}
			numeric, qualifier := version.Split(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "version=%s qualifier=%s\n", numeric, qualifier)
			return nil
		},
	}
}

// tableRow is one release of a version table file
type tableRow struct {
	Release string `yaml:"release"`
	Minimal string `yaml:"minimal"`
	I18n    string `yaml:"i18n"`
}

func loadTable(path string) (*version.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "version table", err)
	}
	var rows []tableRow
	if err := yaml.UnmarshalStrict(data, &rows); err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "version table", err)
	}
	releases := make([]models.MinimalReleaseVersion, 0, len(rows))
	for _, row := range rows {
		releases = append(releases, models.MinimalReleaseVersion{
			ReleaseVersion: row.Release,
			MinimalVersion: row.Minimal,
			I18nVersion:    row.I18n,
		})
	}
	return version.NewTable(releases)
}

func newVersionResolveCommand() *cobra.Command {
	var tableFile string

	cmd := &cobra.Command{
		Use:   "resolve <client-version>",
		Short: "Check a client version against the published releases",
		Long: "Check a client version against the published releases. The releases\n" +
			"are read from --table when given, else from the management database.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := version.NewStore()
			if tableFile != "" {
				table, err := loadTable(tableFile)
				if err != nil {
					return err
				}
				store.Swap(table)
			} else {
				if err := connectDatabase(); err != nil {
					return err
				}
				if err := store.Refresh(cmd.Context(), repository.NewVersionRepository()); err != nil {
					return err
				}
			}

			compat, err := version.NewResolver(store).Check(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), compat)
		},
	}
	cmd.Flags().StringVar(&tableFile, "table", "", "YAML file of {release, minimal, i18n} rows")
	return cmd
}

func newVersionPublishCommand() *cobra.Command {
	var minimal, i18n string

	cmd := &cobra.Command{
		Use:   "publish <release>",
		Short: "Publish a release with its minimal compatible version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			release := models.MinimalReleaseVersion{
				ReleaseVersion: args[0],
				MinimalVersion: minimal,
				I18nVersion:    i18n,
			}
			if err := validateRelease(release); err != nil {
				return err
			}

			if err := connectDatabase(); err != nil {
				return err
			}
			if err := repository.NewVersionRepository().Publish(cmd.Context(), &release); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s (minimal %s)\n", release.ReleaseVersion, release.MinimalVersion)
			return nil
		},
	}
	cmd.Flags().StringVar(&minimal, "minimal", "", "oldest client version compatible with the release")
	cmd.Flags().StringVar(&i18n, "i18n", "", "i18n resource version of the release")
	cmd.MarkFlagRequired("minimal")
	return cmd
}

// validateRelease checks a release before it reaches the database: both
// versions parse and the minimal version is not newer than the release
func validateRelease(r models.MinimalReleaseVersion) error {
	cmp, err := version.Compare(r.MinimalVersion, r.ReleaseVersion)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "publish", err)
	}
	if cmp > 0 {
		return apperr.Newf(apperr.KindValidation, "publish",
			"minimal version %s is newer than release %s", r.MinimalVersion, r.ReleaseVersion)
	}
	return nil
}
