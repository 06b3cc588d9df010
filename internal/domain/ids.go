package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidFoodID = errors.New("invalid food id")

// Source is the provider a food record originates from
type Source string

const (
	SourceUSDA          Source = "USDA"
	SourceOpenFoodFacts Source = "OPENFOODFACTS"
	SourceCustom        Source = "CUSTOM"
)

func (s Source) Valid() bool {
	switch s {
	case SourceUSDA, SourceOpenFoodFacts, SourceCustom:
		return true
	}
	return false
}

// NewFoodID encodes the source and its native id into one globally unique id
func NewFoodID(source Source, nativeID string) string {
	return string(source) + "_" + nativeID
}

// NewCustomFoodID returns a fresh id for a user-typed food
func NewCustomFoodID() string {
	return NewFoodID(SourceCustom, uuid.New().String())
}

// ParseFoodID splits an id on its first underscore
func ParseFoodID(id string) (Source, string, error) {
	prefix, native, ok := strings.Cut(id, "_")
	if !ok || native == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidFoodID, id)
	}
	source := Source(prefix)
	if !source.Valid() {
		return "", "", fmt.Errorf("%w: unknown source %q", ErrInvalidFoodID, prefix)
	}
	return source, native, nil
}
