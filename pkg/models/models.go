package models

// Public records shared with collaborators outside the alert core.

// Profile is the read-only identity annotation used to label alerts.
type Profile struct {
	UserID     string `json:"user_id" db:"user_id" validate:"required"`
	FullName   string `json:"full_name" db:"full_name"`
	RollNumber string `json:"roll_number" db:"roll_number"`
	UserType   string `json:"user_type" db:"user_type"`
	Phone      string `json:"phone,omitempty" db:"phone"`
	Address    string `json:"address,omitempty" db:"address"`
	Updated    int64  `json:"updated" db:"updated"`
}

// Preference is a persisted per-user key/value, e.g. the SOS button position.
type Preference struct {
	UserID  string `json:"user_id" db:"user_id" validate:"required"`
	Key     string `json:"key" db:"pref_key" validate:"required,max=64"`
	Value   string `json:"value" db:"pref_value" validate:"max=4096"`
	Updated int64  `json:"updated" db:"updated"`
}
