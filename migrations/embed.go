// Package migrations holds the versioned schema files applied by
// `referral-server migrate up`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
