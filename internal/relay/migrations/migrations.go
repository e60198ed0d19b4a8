// Package migrations embeds the relay schema, one directory per driver.
package migrations

import "embed"

//go:embed sqlite/*.sql mysql/*.sql
var FS embed.FS
