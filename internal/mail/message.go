package mail

import (
	"errors"
	"fmt"
	"strings"
)

// Message is a rendered notification.
type Message struct {
	To       string
	Subject  string
	Body     string
	Template string
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("mail: recipient is required")
	}
	if m.Subject == "" {
		return errors.New("mail: subject is required")
	}
	return nil
}

const ignoreNotice = "If you did not request this code, ignore this message."

func ConfirmEmail(to, code string) Message {
	return Message{
		To:       to,
		Subject:  "Confirm your email",
		Body:     fmt.Sprintf("Your account confirmation code: %s.\n%s", code, ignoreNotice),
		Template: "confirm_email",
	}
}

// AdminApproval goes to the administrators' inbox, not to the new account.
func AdminApproval(to, applicant, code string) Message {
	return Message{
		To:      to,
		Subject: "Confirm administrator registration",
		Body: fmt.Sprintf("A new administrator registration was requested for %s. "+
			"Confirmation code: %s. Pass it on to the new administrator.\n"+
			"If you do not know this person, ignore this message.", applicant, code),
		Template: "admin_approval",
	}
}

func ResetPassword(to, code string) Message {
	return Message{
		To:       to,
		Subject:  "Confirm password reset",
		Body:     fmt.Sprintf("Your password reset code: %s.\n%s", code, ignoreNotice),
		Template: "reset_password",
	}
}

func PasswordChanged(to string) Message {
	return Message{
		To:       to,
		Subject:  "Your password was changed",
		Body:     "The password on your account was changed. If this was not you, change it immediately.",
		Template: "password_changed",
	}
}

func Welcome(to string) Message {
	return Message{
		To:       to,
		Subject:  "Email confirmed",
		Body:     "Welcome aboard. Your email address is now confirmed.",
		Template: "welcome",
	}
}
