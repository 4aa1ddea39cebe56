package http

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"

	"github.com/quantonganh/postbox"
)

const bearerPrefix = "Bearer "

func (s *Server) subscribeHandler(w http.ResponseWriter, r *http.Request) error {
	email := emailFromPath(r)
	defer s.locks.Lock(string(email))()

	hlog.FromRequest(r).Info().Str("email", string(email)).Msg("Subscribe")
	if err := s.RegistrationService.Subscribe(email); err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) unsubscribeHandler(w http.ResponseWriter, r *http.Request) error {
	email := emailFromPath(r)
	defer s.locks.Lock(string(email))()

	hlog.FromRequest(r).Info().Str("email", string(email)).Msg("Unsubscribe")
	if err := s.RegistrationService.Unsubscribe(email); err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) confirmHandler(w http.ResponseWriter, r *http.Request) error {
	email := emailFromPath(r)

	token, err := bearerToken(r)
	if err != nil {
		return err
	}

	defer s.locks.Lock(string(email))()

	hlog.FromRequest(r).Info().Str("email", string(email)).Msg("Confirm")
	if err := s.RegistrationService.Confirm(email, token); err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func emailFromPath(r *http.Request) postbox.Email {
	return postbox.Email(mux.Vars(r)["email"])
}

func bearerToken(r *http.Request) (postbox.Token, error) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, bearerPrefix) {
		return nil, NewError(nil, http.StatusUnauthorized, "Missing bearer token.")
	}

	return postbox.ParseToken(strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix)))
}
