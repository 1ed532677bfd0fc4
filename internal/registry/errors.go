package registry

import "errors"

// ErrAlreadyRegistered means the identity already owns an account.
// Registration is permanent; there is no unregister path.
var ErrAlreadyRegistered = errors.New("identity already registered")
