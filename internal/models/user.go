package models

import "time"

// User links a chat workspace identity to a calendar account.
// RefreshToken is empty until the user completes login; Deleted is a soft
// flag toggled on logout and cleared again on re-login. The token and the
// flag are independent: logout does not revoke the stored credential.
type User struct {
	UserKey      string
	Email        string
	RefreshToken string
	Deleted      bool
	CreatedAt    time.Time
}
