package fakeapi

import (
	"errors"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/naveenspark/larder/pkg/domain"
)

const (
	msgUsernameTaken      = "A user with that username already exists."
	msgInvalidCredentials = "No active account found with the given credentials"
)

var (
	errUsernameTaken      = errors.New("username taken")
	errInvalidCredentials = errors.New("invalid credentials")
)

// AddUser registers an account directly, bypassing the HTTP surface.
func (s *Server) AddUser(username, password string) (domain.User, error) {
	return s.register(domain.SignupRequest{Username: username, Password: password})
}

func (s *Server) register(req domain.SignupRequest) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		return domain.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(req.Username)
	if _, ok := s.accounts[key]; ok {
		return domain.User{}, errUsernameTaken
	}
	s.nextUserID++
	u := domain.User{
		ID:        domain.ID(strconv.Itoa(s.nextUserID)),
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	s.accounts[key] = &account{user: u, passwordHash: hash}
	return u, nil
}

func (s *Server) checkPassword(username, password string) (domain.User, error) {
	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(username)]
	s.mu.Unlock()
	if !ok {
		return domain.User{}, errInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)) != nil {
		return domain.User{}, errInvalidCredentials
	}
	return acc.user, nil
}

func (s *Server) userByID(id domain.ID) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc.user, true
		}
	}
	return domain.User{}, false
}
