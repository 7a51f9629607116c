package cli

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"zentoerp/deployctl/internal/tenant"
	"zentoerp/deployctl/internal/tenant/repository"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants and their domains",
}

// tenantService opens the database and wires the tenant service.
// The caller must close the returned connection.
func tenantService() (*tenant.Service, *sql.DB, error) {
	conn, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	repo := repository.NewPostgresRepository(conn)
	svc := tenant.NewService(conn, repo, cfg.DatabaseURL, nil, logger)
	return svc, conn, nil
}

var (
	tenantName     string
	tenantEmail    string
	tenantPhone    string
	tenantProfNo   string
	tenantSchema   string
	tenantHostname string
	tenantNotes    string
)

var tenantCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a tenant: row, primary domain, schema, migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := tenantService()
		if err != nil {
			return err
		}
		defer conn.Close()

		t, err := svc.Provision(cmd.Context(), tenant.NewTenant{
			Name:               tenantName,
			Email:              tenantEmail,
			Phone:              tenantPhone,
			ProfessionalNumber: tenantProfNo,
			SchemaName:         tenantSchema,
			Hostname:           tenantHostname,
			BaseDomain:         cfg.BaseDomain,
			DevPort:            cfg.DevPort,
			Notes:              tenantNotes,
		})
		if err != nil {
			return err
		}
		fmt.Printf("tenant %s created (schema %s, slug %s)\n", t.Name, t.SchemaName, t.Slug)
		return nil
	},
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants with their primary domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := tenantService()
		if err != nil {
			return err
		}
		defer conn.Close()

		summaries, err := svc.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, s := range summaries {
			hostname := s.PrimaryHostname
			if hostname == "" {
				hostname = "(no primary domain)"
			}
			fmt.Printf("%-20s %-12s %-10s %s\n", s.Tenant.SchemaName, s.Tenant.Status, s.Tenant.Slug, hostname)
		}
		return nil
	},
}

var tenantEnsureDomainsCmd = &cobra.Command{
	Use:   "ensure-domains",
	Short: "Create a primary <schema>.<base-domain> for tenants lacking one",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := tenantService()
		if err != nil {
			return err
		}
		defer conn.Close()

		created, err := svc.EnsureDomains(cmd.Context(), cfg.BaseDomain, cfg.DevPort)
		if err != nil {
			return err
		}
		fmt.Printf("created %d domain(s)\n", created)
		return nil
	},
}

var tenantNormalizeDomainsCmd = &cobra.Command{
	Use:   "normalize-domains",
	Short: "Create RFC-compliant alias domains for invalid hostnames",
	Long: `Scans all domains for RFC 1034/1035 violations (underscores, uppercase).
For each offender whose corrected form is free, a non-primary alias is
created; switch it with set-primary once DNS is ready.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := tenantService()
		if err != nil {
			return err
		}
		defer conn.Close()

		results, err := svc.NormalizeHostnames(cmd.Context())
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("all hostnames are compliant")
			return nil
		}
		for _, r := range results {
			switch {
			case r.Created:
				fmt.Printf("alias created: %s -> %s\n", r.Hostname, r.Normalized)
			case r.Conflict:
				fmt.Printf("conflict: %s -> %s already exists\n", r.Hostname, r.Normalized)
			case r.Invalid:
				fmt.Printf("invalid: %s cannot be normalized\n", r.Hostname)
			}
		}
		return nil
	},
}

var tenantSetPrimaryCmd = &cobra.Command{
	Use:   "set-primary <schema> <hostname>",
	Short: "Make a hostname the tenant's primary domain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := tenantService()
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := svc.SetPrimary(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s is now primary for %s\n", args[1], args[0])
		return nil
	},
}

func init() {
	tenantCreateCmd.Flags().StringVar(&tenantName, "name", "", "tenant name (required)")
	tenantCreateCmd.Flags().StringVar(&tenantEmail, "email", "", "tenant contact email (required)")
	tenantCreateCmd.Flags().StringVar(&tenantPhone, "phone", "", "tenant contact phone")
	tenantCreateCmd.Flags().StringVar(&tenantProfNo, "professional-number", "", "professional registration number")
	tenantCreateCmd.Flags().StringVar(&tenantSchema, "schema", "", "Postgres schema name (required)")
	tenantCreateCmd.Flags().StringVar(&tenantHostname, "hostname", "", "primary domain (default <schema>.<base-domain>)")
	tenantCreateCmd.Flags().StringVar(&tenantNotes, "notes", "", "free-form notes")

	tenantCmd.AddCommand(tenantCreateCmd, tenantListCmd, tenantEnsureDomainsCmd,
		tenantNormalizeDomainsCmd, tenantSetPrimaryCmd)
	rootCmd.AddCommand(tenantCmd)
}
