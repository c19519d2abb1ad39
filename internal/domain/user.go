package domain

// Identity represents the verified claims of a logged-in user
type Identity struct {
	Subject       string   `json:"sub"`
	Email         string   `json:"email,omitempty"`
	EmailVerified *bool    `json:"email_verified,omitempty"`
	Groups        []string `json:"groups,omitempty"`
}

// DisplayName returns the email when present, else the subject
func (i Identity) DisplayName() string {
	if i.Email != "" {
		return i.Email
	}
	return i.Subject
}

// Clone returns a deep copy so callers never share the groups slice
func (i Identity) Clone() Identity {
	out := i
	if i.EmailVerified != nil {
		v := *i.EmailVerified
		out.EmailVerified = &v
	}
	if i.Groups != nil {
		out.Groups = append([]string(nil), i.Groups...)
	}
	return out
}
