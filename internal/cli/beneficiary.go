package cli

import (
	"time"

	"github.com/spf13/cobra"

	identitymodels "benefits/internal/identity/models"
	id "benefits/pkg/domain"
)

// candidateFlags binds the identifying fields of a person.
type candidateFlags struct {
	first, middle, last string
	birthdate           string
	gender, contact     string
	address, externalID string
	homeTenant          int64
}

func (f *candidateFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.first, "first", "", "first name")
	cmd.Flags().StringVar(&f.middle, "middle", "", "middle name")
	cmd.Flags().StringVar(&f.last, "last", "", "last name")
	cmd.Flags().StringVar(&f.birthdate, "birthdate", "", "birthdate (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.gender, "gender", "", "male or female")
	cmd.Flags().StringVar(&f.contact, "contact", "", "contact number")
	cmd.Flags().StringVar(&f.address, "address", "", "address")
	cmd.Flags().StringVar(&f.externalID, "external-id", "", "external reference")
	cmd.Flags().Int64Var(&f.homeTenant, "home-tenant", 0, "home office (defaults to the caller's)")
}

func (f *candidateFlags) candidate() (identitymodels.Candidate, error) {
	bd, err := parseDate("birthdate", f.birthdate)
	if err != nil {
		return identitymodels.Candidate{}, err
	}
	return identitymodels.Candidate{
		FirstName:     f.first,
		MiddleName:    f.middle,
		LastName:      f.last,
		Birthdate:     bd,
		Gender:        f.gender,
		ContactNumber: f.contact,
		Address:       f.address,
		ExternalID:    f.externalID,
		HomeTenantID:  id.TenantID(f.homeTenant),
	}, nil
}

func (s *session) beneficiaryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "beneficiary", Aliases: []string{"ben"}, Short: "Provincial identity pool"}

	var first, last, birthdate string
	search := &cobra.Command{
		Use:   "search",
		Short: "Fuzzy search for similar beneficiaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			var bd *time.Time
			if birthdate != "" {
				t, err := parseDate("birthdate", birthdate)
				if err != nil {
					return err
				}
				bd = &t
			}
			matches, err := a.Identity.SearchSimilar(ctx, first, last, bd)
			if err != nil {
				return err
			}
			return s.print(matches)
		},
	}
	search.Flags().StringVar(&first, "first", "", "first name")
	search.Flags().StringVar(&last, "last", "", "last name")
	search.Flags().StringVar(&birthdate, "birthdate", "", "birthdate (YYYY-MM-DD); omit to search all birthdates")
	_ = search.MarkFlagRequired("last")

	duplicates := &cobra.Command{
		Use:   "duplicates ID",
		Short: "Probable duplicates of a registered beneficiary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			beneficiaryID, err := id.ParseBeneficiaryID(args[0])
			if err != nil {
				return err
			}
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			matches, err := a.Identity.ProbableDuplicates(ctx, beneficiaryID)
			if err != nil {
				return err
			}
			return s.print(matches)
		},
	}

	var reg candidateFlags
	register := &cobra.Command{
		Use:   "register",
		Short: "Find the exact match or register a new beneficiary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := reg.candidate()
			if err != nil {
				return err
			}
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			b, created, err := a.Identity.FindOrCreate(ctx, c)
			if err != nil {
				return err
			}
			return s.print(map[string]any{"beneficiary": b, "created": created})
		},
	}
	reg.bind(register)

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show a beneficiary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			beneficiaryID, err := id.ParseBeneficiaryID(args[0])
			if err != nil {
				return err
			}
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			b, err := a.Identity.Get(ctx, beneficiaryID)
			if err != nil {
				return err
			}
			return s.print(b)
		},
	}

	var upd candidateFlags
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Edit the fields given as flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			beneficiaryID, err := id.ParseBeneficiaryID(args[0])
			if err != nil {
				return err
			}
			req := identitymodels.UpdateRequest{}
			changed := func(name string, v *string) *string {
				if cmd.Flags().Changed(name) {
					return v
				}
				return nil
			}
			req.FirstName = changed("first", &upd.first)
			req.MiddleName = changed("middle", &upd.middle)
			req.LastName = changed("last", &upd.last)
			req.Gender = changed("gender", &upd.gender)
			req.ContactNumber = changed("contact", &upd.contact)
			req.Address = changed("address", &upd.address)
			req.ExternalID = changed("external-id", &upd.externalID)

			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			b, err := a.Identity.Update(ctx, beneficiaryID, req)
			if err != nil {
				return err
			}
			return s.print(b)
		},
	}
	upd.bind(update)

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Tombstone a beneficiary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			beneficiaryID, err := id.ParseBeneficiaryID(args[0])
			if err != nil {
				return err
			}
			ctx, a, err := s.context(cmd)
			if err != nil {
				return err
			}
			if err := a.Identity.Delete(ctx, beneficiaryID); err != nil {
				return err
			}
			return s.print(map[string]any{"deleted": beneficiaryID})
		},
	}

	cmd.AddCommand(search, duplicates, register, get, update, del)
	return cmd
}
