package domain

// UserProfile is captured at onboarding and edited from settings.
type UserProfile struct {
	Nickname   string `json:"nickname"`
	ProfilePic string `json:"profilePic,omitempty"`
}
