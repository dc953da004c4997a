// Package id mints identifiers for accounts, sessions, challenges and flows.
package id

import "github.com/oklog/ulid/v2"

// New returns a ULID string. IDs minted by one process sort by creation time.
func New() string {
	return ulid.Make().String()
}
