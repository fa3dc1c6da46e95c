// Package util holds small cross-cutting helpers. GenUUID mirrors the
// teacher's internal/util.GenUUID call sites (store/db/postgres/ai_block.go)
// though that helper's own source was not part of the retrieved pack; this
// is a from-scratch implementation of the same one-line contract.
package util

import "github.com/google/uuid"

// GenUUID returns a new random UUID string, used for Event and
// ScheduledAction external ids.
func GenUUID() string {
	return uuid.NewString()
}
