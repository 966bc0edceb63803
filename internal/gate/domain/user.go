package domain

// User is a credential-store identity. Password always holds an Argon2id
// hash, never plaintext.
type User struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// RootUsername is the reserved identity ensured at bootstrap.
const RootUsername = "root"
