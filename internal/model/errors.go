package model

import "errors"

// ErrDataInconsistency marks a dataset that cannot be solved as given: weights that do not
// cover a calendar year, empty sets, missing series, out-of-range parameters.
// Callers test for it with errors.Is; the wrapping message carries the detail.
var ErrDataInconsistency = errors.New("data inconsistency")
