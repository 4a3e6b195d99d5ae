package model

import "time"

// Customer and Service are append-mostly reference data. The core never
// mutates them; it resolves them by id for display and duration defaults.

type Customer struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email,omitempty" bson:"email,omitempty"`
	Phone     string    `json:"phone,omitempty" bson:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

type Service struct {
	ID              string `json:"id" bson:"_id"`
	Name            string `json:"name" bson:"name"`
	DurationMinutes int    `json:"durationMinutes" bson:"durationMinutes"`
	Price           string `json:"price,omitempty" bson:"price,omitempty"`
	Description     string `json:"description,omitempty" bson:"description,omitempty"`
}

type User struct {
	ID    string `json:"id" bson:"_id"`
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
	Role  string `json:"role,omitempty" bson:"role,omitempty"`
}
