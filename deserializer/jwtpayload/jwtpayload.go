package jwtpayload

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/goSSO/deserializer"
	"github.com/MrEthical07/goSSO/identity"
	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm accepted from the SSO server.
type SigningMethod string

const (
	// MethodHS256 verifies HMAC-SHA256 tokens with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 verifies EdDSA tokens with an Ed25519 public key.
	MethodEd25519 SigningMethod = "ed25519"
)

// DefaultIDClaim is the claim read as the identifier when Config.IDClaim is empty.
const DefaultIDClaim = "sub"

// Config holds verification material and claim mapping.
type Config struct {
	SigningMethod SigningMethod

	// Secret is the HS256 shared secret.
	Secret []byte
	// PublicKey is the Ed25519 verification key, raw or PEM.
	PublicKey []byte
	// VerifyKeys maps kid header values to keys (secrets for HS256, public
	// keys for Ed25519). When set, tokens must carry a known kid.
	VerifyKeys map[string][]byte

	Issuer   string
	Audience string

	// IDClaim names the identifier claim.
	IDClaim string

	// ValidateTime enables exp/nbf/iat checks against Clock. It is off by
	// default so that conversion stays a pure function of the token.
	ValidateTime bool
	Clock        func() time.Time
	Leeway       time.Duration
}

// Deserializer verifies a compact JWS and maps its claims onto an identity.
type Deserializer struct {
	method     jwt.SigningMethod
	verifyKey  any
	keysByKID  map[string]any
	issuer     string
	audience   string
	idClaim    string
	checkTime  bool
	clock      func() time.Time
	leeway     time.Duration
	parserOpts []jwt.ParserOption
}

var _ deserializer.Deserializer = (*Deserializer)(nil)

// New validates cfg and parses its keys.
func New(cfg Config) (*Deserializer, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwtpayload: invalid leeway configuration")
	}

	d := &Deserializer{
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		idClaim:   strings.TrimSpace(cfg.IDClaim),
		checkTime: cfg.ValidateTime,
		clock:     cfg.Clock,
		leeway:    cfg.Leeway,
	}
	if d.idClaim == "" {
		d.idClaim = DefaultIDClaim
	}
	if d.checkTime && d.clock == nil {
		d.clock = time.Now
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		d.method = jwt.SigningMethodHS256
		if len(cfg.Secret) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("jwtpayload: hs256 requires a secret or verify key set")
		}
		if len(cfg.Secret) > 0 {
			d.verifyKey = cfg.Secret
		}
	case MethodEd25519:
		d.method = jwt.SigningMethodEdDSA
		if len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("jwtpayload: ed25519 requires a public key or verify key set")
		}
		if len(cfg.PublicKey) > 0 {
			key, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("jwtpayload: %w", err)
			}
			d.verifyKey = key
		}
	default:
		return nil, fmt.Errorf("jwtpayload: unsupported signing method %q", cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) > 0 {
		d.keysByKID = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("jwtpayload: verify key map contains empty kid")
			}
			key, err := d.keyFromBytes(raw)
			if err != nil {
				return nil, fmt.Errorf("jwtpayload: invalid verify key for kid %q: %w", kid, err)
			}
			d.keysByKID[kid] = key
		}
	}

	// Claims are checked by Deserialize itself so that time validation stays
	// optional and driven by the configured clock.
	d.parserOpts = []jwt.ParserOption{
		jwt.WithValidMethods([]string{d.method.Alg()}),
		jwt.WithJSONNumber(),
		jwt.WithoutClaimsValidation(),
	}

	return d, nil
}

// Deserialize implements deserializer.Deserializer.
func (d *Deserializer) Deserialize(payload string) (identity.Identity, error) {
	tokenStr := strings.TrimSpace(payload)
	if tokenStr == "" {
		return nil, deserializer.Malformed(errors.New("empty token"))
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(d.parserOpts...)
	if _, err := parser.ParseWithClaims(tokenStr, claims, d.keyFunc); err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, deserializer.Malformed(err)
		}
		return nil, deserializer.Unverified(err)
	}

	if err := d.checkClaims(claims); err != nil {
		return nil, deserializer.Unverified(err)
	}

	raw, present := claims[d.idClaim]
	if !present || raw == nil {
		return nil, deserializer.MissingIdentifier(d.idClaim, nil)
	}
	id, ok := raw.(string)
	if !ok {
		got, err := identity.FromAny(raw)
		if err != nil {
			return nil, deserializer.Malformed(err)
		}
		return nil, deserializer.TypeMismatch(d.idClaim, identity.KindString.String(), got.Kind().String())
	}
	if strings.TrimSpace(id) == "" {
		return nil, deserializer.MissingIdentifier(d.idClaim, errors.New("identifier is blank"))
	}

	attrs := make(map[string]any, len(claims))
	for k, v := range claims {
		if k != d.idClaim {
			attrs[k] = v
		}
	}
	ident, err := identity.NewFromMap(id, attrs)
	if err != nil {
		return nil, deserializer.Malformed(err)
	}
	return ident, nil
}

func (d *Deserializer) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != d.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	kid, _ := t.Header["kid"].(string)
	if len(d.keysByKID) > 0 && kid != "" {
		key, ok := d.keysByKID[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	}
	if d.verifyKey == nil {
		return nil, errors.New("missing kid")
	}
	return d.verifyKey, nil
}

func (d *Deserializer) checkClaims(claims jwt.MapClaims) error {
	if d.issuer != "" {
		iss, err := claims.GetIssuer()
		if err != nil {
			return err
		}
		if iss != d.issuer {
			return jwt.ErrTokenInvalidIssuer
		}
	}
	if d.audience != "" {
		aud, err := claims.GetAudience()
		if err != nil {
			return err
		}
		if !slices.Contains(aud, d.audience) {
			return jwt.ErrTokenInvalidAudience
		}
	}
	if !d.checkTime {
		return nil
	}

	now := d.clock()
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return err
	}
	if exp != nil && !now.Before(exp.Add(d.leeway)) {
		return jwt.ErrTokenExpired
	}
	nbf, err := claims.GetNotBefore()
	if err != nil {
		return err
	}
	if nbf != nil && now.Add(d.leeway).Before(nbf.Time) {
		return jwt.ErrTokenNotValidYet
	}
	iat, err := claims.GetIssuedAt()
	if err != nil {
		return err
	}
	if iat != nil && now.Add(d.leeway).Before(iat.Time) {
		return jwt.ErrTokenUsedBeforeIssued
	}
	return nil
}

func (d *Deserializer) keyFromBytes(key []byte) (any, error) {
	if d.method == jwt.SigningMethodHS256 {
		if len(key) == 0 {
			return nil, errors.New("empty secret")
		}
		return key, nil
	}
	return parseEdPublicKey(key)
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
