package session

// Data is the denormalized snapshot carried inside a session. It is
// rebuilt from the principal at login and selectively mutated afterwards
// (MFA verification flips IsMFAVerified without recreating the session).
type Data struct {
	Roles         []string          `json:"roles,omitempty"`
	Permissions   []string          `json:"permissions,omitempty"`
	IsMFAVerified bool              `json:"is_mfa_verified"`
	Custom        map[string]string `json:"custom,omitempty"`
}

// Device holds request metadata captured at session creation.
type Device struct {
	Name      string `json:"name,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// Session represents one authenticated device/browser context.
// Timestamps are unix seconds.
type Session struct {
	ID           string `json:"id"`
	PrincipalID  string `json:"principal_id"`
	TenantID     string `json:"tenant_id,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Data         Data   `json:"data"`
	Device       Device `json:"device"`
	CreatedAt    int64  `json:"created_at"`
	LastActiveAt int64  `json:"last_active_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Clone returns a deep copy so callers can hand sessions to event
// listeners without sharing mutable slices.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	out := *s
	out.Data.Roles = append([]string(nil), s.Data.Roles...)
	out.Data.Permissions = append([]string(nil), s.Data.Permissions...)
	if s.Data.Custom != nil {
		out.Data.Custom = make(map[string]string, len(s.Data.Custom))
		for k, v := range s.Data.Custom {
			out.Data.Custom[k] = v
		}
	}
	return &out
}
