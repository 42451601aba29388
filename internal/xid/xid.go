package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns prefix-<uuid v7>. The time-ordered uuid keeps ids of the same
// kind roughly sortable by creation.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}
