// Package bookmark defines the bookmark record owned by a single user.
package bookmark

import "time"

// Bookmark is a saved link. OwnerID references the user that created it;
// every read or mutation is scoped to that owner.
type Bookmark struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"userId"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
