package db

import "errors"

// ErrNotFound is returned by GetContext when the query matched no rows.
var ErrNotFound = errors.New("not found")

func IgnoreErrNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
