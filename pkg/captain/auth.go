package captain

import "context"

// Authenticator verifies login credentials and resolves the account's
// uid. The production deployment plugs PAM in here; nothing in the
// core depends on how passwords are checked. When no authenticator is
// configured, /login answers not implemented.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (uid int, err error)
}
