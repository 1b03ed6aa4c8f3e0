// Package migrations embeds the PostgreSQL schema and seed files so the
// binary can migrate without the source tree.
package migrations

import "embed"

//go:embed sql/*.sql
var SQL embed.FS

//go:embed seeds/*.sql
var Seeds embed.FS
