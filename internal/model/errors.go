package model

import "errors"

// Validation errors surfaced by ParsedResult.Validate and the validation
// pipeline's business-rule checks.
var (
	ErrInvalidType         = errors.New("invalid type")
	ErrShareExceedsOverall = errors.New("share exceeds overall")
	ErrTransferCategory    = errors.New("transfer: categories must be null")
)
