package models

type User struct {
	ID int `db:"id"`

	Username string `db:"username"`
	Email    string `db:"email"`
	IsStaff  bool   `db:"is_staff"`
}
