package goSSO

import (
	"fmt"
	"strings"

	"github.com/MrEthical07/goSSO/deserializer"
	"github.com/MrEthical07/goSSO/deserializer/jsonpayload"
	"github.com/MrEthical07/goSSO/deserializer/jwtpayload"
	"github.com/MrEthical07/goSSO/deserializer/xmlpayload"
	"github.com/MrEthical07/goSSO/identity"
)

// newProviderDeserializer builds the deserializer described by p. The second
// result reports whether its conversions depend only on the payload and may
// be memoized.
func newProviderDeserializer(p ProviderConfig) (deserializer.Deserializer, bool, error) {
	switch p.Format {
	case FormatJSON:
		required := make(map[string]identity.Kind, len(p.Required))
		for field, name := range p.Required {
			kind, err := identity.ParseKind(name)
			if err != nil {
				return nil, false, fmt.Errorf("required field %q: %w", field, err)
			}
			required[field] = kind
		}
		d, err := jsonpayload.New(jsonpayload.Config{
			IDField:  p.IDField,
			ExposeID: p.ExposeID,
			Required: required,
			Schema:   p.Schema,
		})
		if err != nil {
			return nil, false, err
		}
		return d, true, nil

	case FormatCAS:
		return xmlpayload.New(xmlpayload.Config{IDElement: p.IDField}), true, nil

	case FormatJWT:
		cfg := jwtpayload.Config{
			SigningMethod: jwtpayload.SigningMethod(strings.ToLower(p.JWT.Method)),
			Issuer:        p.JWT.Issuer,
			Audience:      p.JWT.Audience,
			IDClaim:       p.IDField,
			ValidateTime:  p.JWT.ValidateTime,
			Leeway:        p.JWT.Leeway,
		}
		if p.JWT.Secret != "" {
			cfg.Secret = []byte(p.JWT.Secret)
		}
		if p.JWT.PublicKey != "" {
			cfg.PublicKey = []byte(p.JWT.PublicKey)
		}
		if len(p.JWT.Keys) > 0 {
			cfg.VerifyKeys = make(map[string][]byte, len(p.JWT.Keys))
			for kid, key := range p.JWT.Keys {
				cfg.VerifyKeys[kid] = []byte(key)
			}
		}
		d, err := jwtpayload.New(cfg)
		if err != nil {
			return nil, false, err
		}
		// Time validation reads the clock, so results are not reusable.
		return d, !p.JWT.ValidateTime, nil

	default:
		return nil, false, fmt.Errorf("unknown provider format %q", p.Format)
	}
}
