package db

import (
	"time"

	"github.com/google/uuid"
)

// EntryBody is the base record shared by every identifiable row:
// a serial id, a uuid and creation/modification timestamps.
type EntryBody struct {
	Id        int
	Uuid      uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *EntryBody) Equal(o *EntryBody) bool {
	if (e == nil) || (o == nil) {
		return (e == nil) && (o == nil)
	}
	return e.Id == o.Id &&
		e.Uuid == o.Uuid &&
		e.CreatedAt.Equal(o.CreatedAt) &&
		e.UpdatedAt.Equal(o.UpdatedAt)
}
