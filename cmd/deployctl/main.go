// deployctl is the deployment control CLI for the Zento multi-tenant CRM:
// database diagnosis, phased migrations, static assets, tenant domains,
// readiness verification and health probing.
package main

import (
	"os"

	"zentoerp/deployctl/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
