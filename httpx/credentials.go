package httpx

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/oauth"
	"golang.org/x/crypto/bcrypt"

	"github.com/istm-portal/backend/store"
)

type credentialsVerifier struct {
	store store.Store

	mu     sync.Mutex
	tokens map[string]issuedToken
}

type issuedToken struct {
	tokenID        string
	refreshTokenID string
	expiration     time.Time
}

// CredentialsVerifier authenticates back-office accounts against whichever
// backend the portal runs on. Refresh tokens are held in memory: losing
// them on restart only forces administrators to log in again.
func CredentialsVerifier(s store.Store) oauth.CredentialsVerifier {
	return &credentialsVerifier{
		store:  s,
		tokens: map[string]issuedToken{},
	}
}

func (cs *credentialsVerifier) ValidateUser(username string, password string, scope string, r *http.Request) error {
	hash, err := cs.store.AdminPasswordHash(r.Context(), username)
	if err != nil {
		return err
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}

func (cs *credentialsVerifier) StoreTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.tokens[credential] = issuedToken{
		tokenID:        tokenID,
		refreshTokenID: refreshTokenID,
		expiration:     time.Now().Add(8760 * time.Hour),
	}
	return nil
}

func (cs *credentialsVerifier) ValidateTokenID(tokenType oauth.TokenType, credential string, tokenID string, refreshTokenID string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	issued, ok := cs.tokens[credential]
	if !ok || issued.tokenID != tokenID || issued.refreshTokenID != refreshTokenID {
		return errors.New("could not refresh")
	}
	delete(cs.tokens, credential)

	if issued.expiration.Before(time.Now()) {
		return errors.New("could not refresh")
	}
	return nil
}

func (*credentialsVerifier) AddClaims(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{"roles": "admin"}, nil
}

func (*credentialsVerifier) AddProperties(tokenType oauth.TokenType, credential string, tokenID string, scope string, r *http.Request) (map[string]string, error) {
	return map[string]string{}, nil
}

func (*credentialsVerifier) ValidateClient(clientID string, clientSecret string, scope string, r *http.Request) error {
	return errors.New("not supported")
}
