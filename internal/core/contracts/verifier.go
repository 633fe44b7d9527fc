package contracts

import "github.com/google/uuid"

// TokenVerifier validates a credential string and yields the identity
// behind it, or domain.ErrInvalidToken.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}
