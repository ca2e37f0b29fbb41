package game

import "errors"

var (
	// errGone aborts a transaction when a guarded remove found the stack
	// already depleted by a concurrent handler.
	errGone = errors.New("stack depleted")

	errBadQuantity = errors.New("bad quantity")
)
