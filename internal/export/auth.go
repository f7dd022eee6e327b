package export

import (
	"time"

	"github.com/Lelleck/wise/internal/config"
)

// AuthHandle is the capability a connection holds after presenting a
// valid token. It gates which events the connection sees and whether it
// may dispatch commands.
type AuthHandle struct {
	Name      string           `json:"name"`
	Perms     config.AuthPerms `json:"perms"`
	GrantedAt time.Time        `json:"-"`
}

// authenticateToken matches the provided token case-sensitively against
// the configured token list.
func authenticateToken(provided string, cfg *config.Config) (AuthHandle, bool) {
	for _, token := range cfg.Auth.Tokens {
		if token.Value == provided {
			return AuthHandle{
				Name:      token.Name,
				Perms:     token.Perms,
				GrantedAt: time.Now(),
			}, true
		}
	}
	return AuthHandle{}, false
}
