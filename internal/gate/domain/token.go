package domain

// TokenPair is what a successful authenticate or refresh returns.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RefreshTokenRecord pairs a refresh token with the access token issued
// alongside it; a refresh is rejected when the presented access token does
// not match the stored pairing.
type RefreshTokenRecord struct {
	Username     string `json:"username"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
