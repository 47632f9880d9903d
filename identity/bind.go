package identity

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Bind decodes the attributes of ident into out, which must be a pointer to a
// struct or map. Struct fields are matched by their `mapstructure` tag (or by
// name, case-insensitively). Input is weakly typed, so a provider that sends
// "42" still fills an int field. The identifier itself is not part of the
// input; read it with ID().
func Bind(ident Identity, out any) error {
	if ident == nil {
		return ErrEmptyID
	}
	if out == nil {
		return errors.New("bind target is nil")
	}

	names := ident.PropertyNames()
	input := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := ident.Property(name); ok {
			input[name] = v.Interface()
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("bind identity %s: %w", ident.ID(), err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("bind identity %s: %w", ident.ID(), err)
	}
	return nil
}
