package classify

import "errors"

// Sentinel kinds for dataset errors.
var (
	ErrDatasetOpen  = errors.New("dataset open failed")
	ErrDatasetParse = errors.New("dataset parse failed")
)
