package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const anonymousTokenBytes = 32

func newAnonymousTokenSecret() (string, error) {
	buf := make([]byte, anonymousTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashAnonymousToken returns the stored form of a raw anonymous access token.
func hashAnonymousToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func tokenMatches(tokens []AnonymousAccessToken, raw string) bool {
	if raw == "" {
		return false
	}
	hashed := []byte(hashAnonymousToken(raw))
	for _, token := range tokens {
		if subtle.ConstantTimeCompare([]byte(token.HashedToken), hashed) == 1 {
			return true
		}
	}
	return false
}

func (s *quotationService) issueAnonymousToken() (string, AnonymousAccessToken, error) {
	secret, err := s.newToken()
	if err != nil {
		return "", AnonymousAccessToken{}, fmt.Errorf("%w: %v", ErrQuotationServerError, err)
	}
	return secret, AnonymousAccessToken{
		HashedToken: hashAnonymousToken(secret),
		CreatedAt:   s.now(),
	}, nil
}

// AddAnonymousToken stores a new hashed token on the quotation and returns the raw secret once.
func (s *quotationService) AddAnonymousToken(ctx context.Context, cmd AddAnonymousTokenCommand) (token string, err error) {
	ctx, finish := s.startOperation(ctx, "add_anonymous_token", cmd.QuotationID)
	defer func() { finish(err) }()

	if err := validateCommand(cmd); err != nil {
		return "", err
	}
	quotation, err := s.load(ctx, cmd.QuotationID)
	if err != nil {
		return "", err
	}
	if err := s.authorize(ctx, quotation, actionUpdate, true); err != nil {
		return "", err
	}

	secret, stored, err := s.issueAnonymousToken()
	if err != nil {
		return "", err
	}
	if err := s.quotations.AppendAnonymousToken(ctx, quotation.ID, stored); err != nil {
		return "", mapQuotationWriteError(err)
	}
	return secret, nil
}
