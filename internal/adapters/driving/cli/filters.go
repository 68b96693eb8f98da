package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/exportrag/internal/core/domain"
)

// filterFlags binds the metadata filter flags shared by several commands.
type filterFlags struct {
	country        string
	categories     []string
	certifications []string
	sourceTypes    []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.country, "country", "c", "", "destination country (ISO code)")
	cmd.Flags().StringSliceVar(&f.categories, "category", nil, "product category (repeatable, any-of)")
	cmd.Flags().StringSliceVar(&f.certifications, "certification", nil, "certification type (repeatable, any-of)")
	cmd.Flags().StringSliceVar(&f.sourceTypes, "source-type", nil, "source type (repeatable, any-of)")
}

func (f *filterFlags) filter() domain.MetadataFilter {
	out := domain.MetadataFilter{
		Country:            strings.TrimSpace(f.country),
		ProductCategories:  f.categories,
		CertificationTypes: f.certifications,
	}
	for _, st := range f.sourceTypes {
		out.SourceTypes = append(out.SourceTypes, domain.SourceType(strings.TrimSpace(st)))
	}
	return out
}

// validate rejects unknown source types before any service call.
func (f *filterFlags) validate() error {
	for _, st := range f.filter().SourceTypes {
		if !st.IsValid() {
			return invalidf("unknown source type %q", st)
		}
	}
	return nil
}
