package main

import (
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/otcheredev/ris-viewer-manager/internal/search"
	"github.com/spf13/cobra"
)

func newSearchCommand() *cobra.Command {
	var (
		file     string
		criteria models.SearchCriteria
		opts     search.Options
		typ      string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search archives of a connector file",
		Example: "  viewerctl search -f connectors.yaml -a pacs -a index --study-uid 1.2.840.1\n" +
			"  viewerctl search -f connectors.yaml -a pacs --type PATIENT --patient-id P001",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := loadRegistry(file)
			if err != nil {
				return err
			}
			defer registry.Close()

			criteria.RequestType = models.RequestType(typ)
			outcome, err := search.NewResolver(registry, opts).Resolve(cmd.Context(), criteria)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), outcome)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "connectors.yaml", "connector file")
	f.StringSliceVarP(&criteria.Archive, "archive", "a", nil, "archive id to search, repeatable")
	f.StringVar(&typ, "type", "", "IHE request type (PATIENT or STUDY)")
	f.StringVar(&criteria.PatientID, "patient-id", "", "patient id")
	f.StringVar(&criteria.PatientName, "patient-name", "", "patient name")
	f.StringVar(&criteria.StudyUID, "study-uid", "", "study instance UID")
	f.StringVar(&criteria.AccessionNumber, "accession", "", "accession number")
	f.StringVar(&criteria.SeriesUID, "series-uid", "", "series instance UID")
	f.StringVar(&criteria.InstanceUID, "instance-uid", "", "SOP instance UID")
	f.IntVar(&criteria.Limit, "limit", 0, "results per archive")
	f.IntVar(&criteria.Offset, "offset", 0, "results to skip per archive")
	f.DurationVar(&opts.Timeout, "timeout", 0, "bound for the whole search")
	f.IntVar(&opts.Concurrency, "concurrency", 0, "archives queried at once")
	return cmd
}
