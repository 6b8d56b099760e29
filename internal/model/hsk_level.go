package model

// HSKLevel represents one of the six HSK proficiency levels.
type HSKLevel struct {
	ID          int    `json:"id"`
	Level       int    `json:"level"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
