package usecase

import "errors"

var (
	// ErrMissingDependency means a component was built without a collaborator
	// it cannot run without. The component stays down; the process keeps going.
	ErrMissingDependency = errors.New("missing dependency")
	ErrNoSignal          = errors.New("no signal ready")
	ErrUnknownSymbol     = errors.New("unknown symbol")
)
