package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/airframesio/report-archiver/cmd/pipeline"
)

const subjectKey = "subject"

var (
	errMissingToken = errors.New("missing bearer token")
	errEmptySubject = errors.New("token has no subject")
)

// tokenVerifier validates HS256 bearer tokens issued by the operator portal
type tokenVerifier struct {
	secret []byte
}

func newTokenVerifier(secret string) *tokenVerifier {
	return &tokenVerifier{secret: []byte(secret)}
}

// verify returns the token subject. Expiry and subject are mandatory.
func (v *tokenVerifier) verify(raw string) (string, error) {
	if raw == "" {
		return "", errMissingToken
	}

	token, err := jwt.Parse(raw,
		func(_ *jwt.Token) (interface{}, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if subject == "" {
		return "", errEmptySubject
	}
	return subject, nil
}

// bearerToken extracts the token from the Authorization header, falling back
// to the token query parameter for websocket clients
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}

// requireAuth rejects the request before any handler touches data
func (s *server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := s.verifier.verify(bearerToken(c))
		if err != nil {
			s.logger.Warn(fmt.Sprintf("⚠️  Rejected request to %s: %v", c.FullPath(), err))
			abortWithError(c, fmt.Errorf("%w: %w", pipeline.ErrUnauthorized, err))
			return
		}
		c.Set(subjectKey, subject)
		c.Next()
	}
}
