package infer

import "errors"

// ErrUnknownModel is returned when a classification model identifier does not
// match any registered backend. Detection signals the same condition with a
// nil result instead, so callers can tell it apart from a zero-count run.
var ErrUnknownModel = errors.New("unknown model")
