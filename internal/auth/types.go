package auth

// Identity represents an authenticated identity
type Identity struct {
	// Subject is the unique identifier for this identity
	Subject string `json:"subject"`

	// Provider is the plug that resolved this identity (e.g., "session", "token", "bearer", "mtls")
	Provider string `json:"provider"`

	// Name is the human-readable name, if known
	Name string `json:"name,omitempty"`

	// Email is the email address, if known
	Email string `json:"email,omitempty"`

	// Attributes contains additional identity information
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// AttrIssuedToken is the attribute under which a plug that issues tokens
// publishes the credential it created
const AttrIssuedToken = "issued_token"

// AuthType represents the type of authentication used
type AuthType string

const (
	// AuthTypeSession represents cookie backed server sessions
	AuthTypeSession AuthType = "session"

	// AuthTypeToken represents self-issued signed tokens
	AuthTypeToken AuthType = "token"

	// AuthTypeBearer represents OIDC Bearer token authentication
	AuthTypeBearer AuthType = "bearer"

	// AuthTypeMTLS represents mTLS authentication
	AuthTypeMTLS AuthType = "mtls"
)
