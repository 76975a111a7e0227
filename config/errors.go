package config

import "errors"

// ErrInvalidConfig is returned by Validate for any unusable setting.
var ErrInvalidConfig = errors.New("invalid configuration")
