package migrations

import "embed"

// FS holds the booking-service schema, applied in version order by golang-migrate.
//
//go:embed *.sql
var FS embed.FS
