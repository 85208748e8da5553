// Package api implements the HTTP surface of the dispatch agent.
package api

import (
    "net/http"

    "quicksecure/internal/model"
)

// getIdentity resolves the requester for a request.
// - X-User-Id / X-Role / X-Display-Name headers win (dev and test use).
// - Otherwise the agent's configured session identity is used.
func (s *Server) getIdentity(r *http.Request) model.Identity {
    if uid := r.Header.Get("X-User-Id"); uid != "" {
        return model.Identity{
            UserID:      uid,
            Role:        r.Header.Get("X-Role"),
            DisplayName: r.Header.Get("X-Display-Name"),
        }
    }
    if s.Session != nil {
        return s.Session.Identity()
    }
    return model.Identity{}
}
