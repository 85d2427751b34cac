package tools

import (
	"errors"
	"fmt"

	"github.com/koscakluka/convai-core/core/events"
)

// Limits applied to tool parameters before a tool runs. They apply at every
// nesting level.
const (
	MaxParams         = 100
	MaxKeyLength      = 100
	MaxStringLength   = 10_000
	MaxSequenceLength = 1_000
	MaxMapEntries     = 100
)

var ErrInvalidParams = errors.New("invalid tool parameters")

// Validate checks params against the parameter limits. The returned error
// matches [ErrInvalidParams].
func Validate(params events.Params) error {
	if len(params) > MaxParams {
		return fmt.Errorf("%w: %d parameters exceed the limit of %d", ErrInvalidParams, len(params), MaxParams)
	}
	for key, value := range params {
		if err := validateKey(key); err != nil {
			return err
		}
		if err := validateValue(key, value); err != nil {
			return err
		}
	}
	return nil
}

func validateKey(key string) error {
	if n := len([]rune(key)); n > MaxKeyLength {
		return fmt.Errorf("%w: key of %d characters exceeds the limit of %d", ErrInvalidParams, n, MaxKeyLength)
	}
	return nil
}

func validateValue(path string, value events.Value) error {
	switch value.Kind() {
	case events.ValueString:
		if value.Len() > MaxStringLength {
			return fmt.Errorf("%w: %s: string of %d characters exceeds the limit of %d", ErrInvalidParams, path, value.Len(), MaxStringLength)
		}
	case events.ValueSequence:
		items, _ := value.AsSequence()
		if len(items) > MaxSequenceLength {
			return fmt.Errorf("%w: %s: sequence of %d entries exceeds the limit of %d", ErrInvalidParams, path, len(items), MaxSequenceLength)
		}
		for i, item := range items {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
	case events.ValueMap:
		entries, _ := value.AsMap()
		if len(entries) > MaxMapEntries {
			return fmt.Errorf("%w: %s: map of %d entries exceeds the limit of %d", ErrInvalidParams, path, len(entries), MaxMapEntries)
		}
		for key, entry := range entries {
			if err := validateKey(key); err != nil {
				return err
			}
			if err := validateValue(path+"."+key, entry); err != nil {
				return err
			}
		}
	}
	return nil
}
