package domain

type User struct {
	ID     string
	AuthID string
	Email  string
	Name   string
}
