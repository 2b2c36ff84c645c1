package types

// Role describes how a place has been used across rides.
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
	RoleBoth        Role = "both"
)

// RideEndpoints is the part of a ride the suggestions dataset cares about.
type RideEndpoints struct {
	RideID      string `json:"rideId"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// SuggestionRecord is a place name ranked by how often it appears in rides.
type SuggestionRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Role  Role   `json:"role"`
}
