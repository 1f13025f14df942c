// Package schemas embeds the database schema.
package schemas

import _ "embed"

// Schema creates the tables and change notification triggers
//
//go:embed schema.sql
var Schema string
