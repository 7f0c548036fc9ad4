package fakeapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/naveenspark/larder/pkg/domain"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := domain.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.checkPassword(req.Username, req.Password)
	if err != nil {
		respondDetail(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}
	s.respondAuth(w, http.StatusOK, u)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := domain.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.register(req)
	if errors.Is(err, errUsernameTaken) {
		respondJSON(w, http.StatusBadRequest, map[string][]string{"username": {msgUsernameTaken}})
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondAuth(w, http.StatusCreated, u)
}

func (s *Server) respondAuth(w http.ResponseWriter, status int, u domain.User) {
	access, refresh, err := s.IssueTokens(u)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, status, domain.AuthResponse{Access: access, Refresh: refresh, User: &u})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		respondJSON(w, http.StatusBadRequest, map[string][]string{"refresh": {"This field is required."}})
		return
	}
	userID, err := s.verify(req.Refresh, tokenRefresh)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"detail": msgTokenInvalid, "code": "token_not_valid"})
		return
	}
	s.mu.Lock()
	gen := s.accessGen
	s.mu.Unlock()
	access, err := s.sign(userID, tokenAccess, gen)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := s.userByID(userIDFrom(r.Context()))
	if !ok {
		respondDetail(w, http.StatusUnauthorized, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleRecipes(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.Recipes())
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	view := s.cartViewLocked(userIDFrom(r.Context()))
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	view := s.cartViewLocked(userIDFrom(r.Context()))
	s.mu.Unlock()
	count := 0
	for _, it := range view.Items {
		count += it.Quantity
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if c, ok := s.carts[userIDFrom(r.Context())]; ok {
		c.items = nil
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipeID domain.ID `json:"recipe_id"`
		Quantity int       `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 1 {
		respondJSON(w, http.StatusBadRequest, map[string][]string{"quantity": {"Ensure this value is greater than or equal to 1."}})
		return
	}
	s.mu.Lock()
	item, ok := s.addItemLocked(userIDFrom(r.Context()), req.RecipeID, req.Quantity)
	s.mu.Unlock()
	if !ok {
		respondDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Quantity < 1 {
		respondJSON(w, http.StatusBadRequest, map[string][]string{"quantity": {"Ensure this value is greater than or equal to 1."}})
		return
	}
	itemID := domain.ID(chi.URLParam(r, "id"))

	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.findItemLocked(userIDFrom(r.Context()), itemID)
	if item == nil {
		respondDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	item.Quantity = req.Quantity
	respondJSON(w, http.StatusOK, *item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID := domain.ID(chi.URLParam(r, "id"))

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userIDFrom(r.Context())]
	if !ok {
		respondDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	for i, it := range c.items {
		if it.ID == itemID {
			c.items = append(c.items[:i], c.items[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	respondDetail(w, http.StatusNotFound, "Not found.")
}

func (s *Server) cartLocked(userID domain.ID) *serverCart {
	c, ok := s.carts[userID]
	if !ok {
		s.nextCartID++
		c = &serverCart{id: domain.ID(strconv.Itoa(s.nextCartID))}
		s.carts[userID] = c
	}
	return c
}

func (s *Server) recipeLocked(id domain.ID) (domain.Recipe, bool) {
	for _, r := range s.recipes {
		if r.ID == id {
			return r, true
		}
	}
	return domain.Recipe{}, false
}

// addItemLocked increments the item for recipeID or creates it.
func (s *Server) addItemLocked(userID, recipeID domain.ID, quantity int) (domain.ServerCartItem, bool) {
	recipe, ok := s.recipeLocked(recipeID)
	if !ok {
		return domain.ServerCartItem{}, false
	}
	c := s.cartLocked(userID)
	for _, it := range c.items {
		if it.Recipe.ID == recipeID {
			it.Quantity += quantity
			return *it, true
		}
	}
	s.nextItemID++
	it := &domain.ServerCartItem{
		ID:       domain.ID(strconv.Itoa(s.nextItemID)),
		Recipe:   recipe,
		Quantity: quantity,
		Price:    recipe.Price,
	}
	c.items = append(c.items, it)
	return *it, true
}

func (s *Server) findItemLocked(userID, itemID domain.ID) *domain.ServerCartItem {
	c, ok := s.carts[userID]
	if !ok {
		return nil
	}
	for _, it := range c.items {
		if it.ID == itemID {
			return it
		}
	}
	return nil
}

func (s *Server) cartViewLocked(userID domain.ID) domain.ServerCart {
	c := s.cartLocked(userID)
	view := domain.ServerCart{ID: c.id, User: userID, Items: make([]domain.ServerCartItem, 0, len(c.items))}
	var total float64
	for _, it := range c.items {
		view.Items = append(view.Items, *it)
		total += float64(it.Price) * float64(it.Quantity)
	}
	view.TotalPrice = domain.Price(total)
	return view
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("fakeapi: encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
