// Package domain defines shared domain constants and types.
package domain

import "time"

const (
	// RoleOwner represents the bot owner with the highest privileges.
	RoleOwner = "owner"
	// RoleAdmin represents elevated administrators below the owner.
	RoleAdmin = "admin"
	// RoleUser represents a standard user with no elevated privileges.
	RoleUser = "user"
)

// User represents a Telegram user registered with the bot.
type User struct {
	UserID     int64     `bson:"user_id" json:"user_id"`
	Name       string    `bson:"name" json:"name"`
	Role       string    `bson:"role" json:"role"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
	LastSeenAt time.Time `bson:"last_seen_at" json:"last_seen_at"`
}
