package domain

import "errors"

// ErrPermissionDenied is returned by raw capture devices when the runtime refuses camera or microphone access.
var ErrPermissionDenied = errors.New("media permission denied")
