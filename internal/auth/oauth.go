package auth

import (
	"log/slog"

	"github.com/go-oauth2/oauth2/v4"
	"github.com/go-oauth2/oauth2/v4/errors"
	"github.com/go-oauth2/oauth2/v4/generates"
	"github.com/go-oauth2/oauth2/v4/manage"
	"github.com/go-oauth2/oauth2/v4/models"
	"github.com/go-oauth2/oauth2/v4/server"
	"github.com/go-oauth2/oauth2/v4/store"
	"github.com/golang-jwt/jwt/v5"
)

// NewAuthorizationServer creates and configures an OAuth 2.0 server for
// machine-to-machine clients (partner apps, internal tools). Access tokens
// are HS256 JWTs signed with the same secret the API middleware verifies.
func NewAuthorizationServer(jwtSecret, clientID, clientSecret, clientDomain string, logger *slog.Logger) *server.Server {
	manager := manage.NewDefaultManager()

	manager.MustTokenStorage(store.NewMemoryTokenStore())
	manager.MapAccessGenerate(generates.NewJWTAccessGenerate("", []byte(jwtSecret), jwt.SigningMethodHS256))

	clientStore := store.NewClientStore()
	err := clientStore.Set(clientID, &models.Client{
		ID:     clientID,
		Secret: clientSecret,
		Domain: clientDomain,
	})
	if err != nil {
		logger.Error("failed to set client in store", "error", err)
		return nil
	}
	manager.MapClientStorage(clientStore)

	srv := server.NewServer(server.NewConfig(), manager)

	// Client Credentials grant only.
	srv.SetAllowGetAccessRequest(true)
	srv.SetClientInfoHandler(server.ClientFormHandler)

	srv.SetExtensionFieldsHandler(func(ti oauth2.TokenInfo) (fieldsValue map[string]interface{}) {
		fieldsValue = map[string]interface{}{
			"sub":   ti.GetClientID(),
			"roles": []string{"service"},
		}
		return
	})

	srv.SetInternalErrorHandler(func(err error) (re *errors.Response) {
		logger.Error("Internal OAuth2 server error", "error", err)
		return
	})

	logger.Info("OAuth 2.0 server configured")
	return srv
}
