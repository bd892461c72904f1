package profile

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAssertion is the shape of a resolved http profile's optional
// jwt_assertion block: a service-account style credential where jn
// mints a short-lived signed bearer token itself rather than shipping a
// long-lived static one.
type JWTAssertion struct {
	Issuer      string                 `json:"issuer"`
	Subject     string                 `json:"subject"`
	Audience    string                 `json:"audience"`
	SigningKey  string                 `json:"signing_key"` // the (env-substituted) HMAC secret
	TTL         string                 `json:"ttl"`         // e.g. "5m"; defaults to 5 minutes
	ExtraClaims map[string]interface{} `json:"extra_claims,omitempty"`
}

// MintBearerAssertion builds and signs a JWT per a.'s claims using
// HS256, returning the signed compact token a caller embeds as
// "Authorization: Bearer <token>". Called by the pipeline builder when
// a resolved http profile's merged config carries a "jwt_assertion"
// object, after environment substitution has already resolved its
// signing_key field.
func MintBearerAssertion(a JWTAssertion) (string, error) {
	if a.SigningKey == "" {
		return "", fmt.Errorf("profile: jwt_assertion missing signing_key")
	}
	ttl := 5 * time.Minute
	if a.TTL != "" {
		parsed, err := time.ParseDuration(a.TTL)
		if err != nil {
			return "", fmt.Errorf("profile: jwt_assertion.ttl %q: %w", a.TTL, err)
		}
		ttl = parsed
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": a.Issuer,
		"sub": a.Subject,
		"aud": a.Audience,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	for k, v := range a.ExtraClaims {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.SigningKey))
	if err != nil {
		return "", fmt.Errorf("profile: sign jwt_assertion: %w", err)
	}
	return signed, nil
}

// ExtractJWTAssertion reads a resolved profile's "jwt_assertion" object,
// if present, into a JWTAssertion. It returns ok=false (no error) when
// the config carries no such block.
func ExtractJWTAssertion(config map[string]interface{}) (JWTAssertion, bool) {
	raw, ok := config["jwt_assertion"].(map[string]interface{})
	if !ok {
		return JWTAssertion{}, false
	}
	a := JWTAssertion{
		Issuer:     stringField(raw, "issuer"),
		Subject:    stringField(raw, "subject"),
		Audience:   stringField(raw, "audience"),
		SigningKey: stringField(raw, "signing_key"),
		TTL:        stringField(raw, "ttl"),
	}
	if extra, ok := raw["extra_claims"].(map[string]interface{}); ok {
		a.ExtraClaims = extra
	}
	return a, true
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
