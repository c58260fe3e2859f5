// Package domain defines the user record, category codes, and the registry
// that persists them.
package domain

import "time"

// User represents a community member tracked by the bot.
type User struct {
	UserID    int64     `bson:"user_id" json:"user_id"`
	Username  string    `bson:"username,omitempty" json:"username,omitempty"`
	FirstName string    `bson:"first_name,omitempty" json:"first_name,omitempty"`
	LastName  string    `bson:"last_name,omitempty" json:"last_name,omitempty"`
	Category  int       `bson:"category" json:"category"`
	JoinedAt  time.Time `bson:"joined_at" json:"joined_at"`
	IsActive  bool      `bson:"is_active" json:"is_active"`
}
