package preferences

import "errors"

var (
	ErrNotFound         = errors.New("preference key not found")
	ErrSchemaVersion    = errors.New("unsupported preference schema version")
	ErrIncompleteRecord = errors.New("preference record is missing fields")
)
