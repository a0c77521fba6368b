package entity

import "time"

// Type classifies an audit entry.
type Type string

const (
	TypeInfo     Type = "INFO"
	TypeError    Type = "ERROR"
	TypeSecurity Type = "SECURITY"
)

// Entry is one row of the auth_logs table.
type Entry struct {
	ID           string    `json:"id" db:"id"`
	AccountID    *string   `json:"account_id,omitempty" db:"account_id"`
	Message      string    `json:"message" db:"message"`
	InnerMessage *string   `json:"inner_message,omitempty" db:"inner_message"`
	Type         Type      `json:"type" db:"type"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// NewEntry builds an entry for accountID. An empty accountID or inner
// message is stored as NULL.
func NewEntry(accountID, message, inner string, typ Type) Entry {
	e := Entry{Message: message, Type: typ}
	if accountID != "" {
		e.AccountID = &accountID
	}
	if inner != "" {
		e.InnerMessage = &inner
	}
	return e
}
