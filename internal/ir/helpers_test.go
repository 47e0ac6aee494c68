package ir

import "fmt"

func fmtWrap(err error) error {
	return fmt.Errorf("outer: %w", err)
}
