package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrDuplicate         = errors.New("duplicate")
	ErrOntologyViolation = errors.New("ontology violation")
)

func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

func InvalidArgumentf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidArgument)...)
}

func OntologyViolationf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrOntologyViolation)...)
}

func Is(err, target error) bool { return errors.Is(err, target) }
