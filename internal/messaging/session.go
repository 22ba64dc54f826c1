package messaging

import "github.com/autocare360/autocare-backend/internal/models"

// Session is the authenticated identity of one view activation. It is passed
// explicitly to every component; ownership decisions compare against UserID.
type Session struct {
	UserID uint
	Role   models.Role
	Token  string
}

func (s Session) IsStaff() bool {
	return s.Role.IsStaff()
}

// Own reports whether the session authored m.
func (s Session) Own(m *models.Message) bool {
	return m.SenderID == s.UserID
}

// Inbound reports whether m is addressed to this session. Staff sessions
// treat every customer message as inbound because the pool shares one inbox.
func (s Session) Inbound(m *models.Message) bool {
	if s.Own(m) {
		return false
	}
	if m.ReceivedBy(s.UserID) {
		return true
	}
	return s.IsStaff() && m.SenderRole == models.RoleCustomer
}
