package entity

import "time"

// User is a workflow participant. PlantID is set for plant-bound roles.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	PlantID   *int64    `json:"plant_id,omitempty"`
	IsDefault bool      `json:"is_default"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName returns first and last name joined
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Plant is a manufacturing site with its own plant heads and engineers
type Plant struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}
