package domain

import "errors"

// ErrInvalidConfiguration marks operator input rejected at set time.
// The previous configuration stays in effect when it is returned.
var ErrInvalidConfiguration = errors.New("invalid configuration")
