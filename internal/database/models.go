package database

// User is the slice of the users table the notification flow needs:
// identity plus the contact fields per channel. Contact fields are
// nullable in the schema, so they map to pointers.
type User struct {
	ID          string  `json:"id" db:"id"`
	Email       *string `json:"email" db:"email"`
	PhoneNumber *string `json:"phone_number" db:"phone_number"`
	FullName    *string `json:"full_name" db:"full_name"`
}

// Item is the slice of the items table the QR signing flow needs.
type Item struct {
	ID           string  `json:"id" db:"id"`
	DepartmentID string  `json:"department_id" db:"department_id"`
	CategoryID   string  `json:"category_id" db:"category_id"`
	Status       string  `json:"status" db:"status"`
	Name         string  `json:"name" db:"name"`
	SerialNumber *string `json:"serial_number" db:"serial_number"`
}
