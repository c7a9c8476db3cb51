package testutil

import (
	"net/http"

	"immersion/pkg/domain"
	"immersion/pkg/requestcontext"
)

const (
	headerRole   = "X-Test-Role"
	headerAgency = "X-Test-Agency"
)

// AsActor marks req as sent by an actor with the given role and agency. The
// ActorFromHeaders middleware turns the marks into a request context actor,
// standing in for JWT authentication in handler tests.
func AsActor(req *http.Request, role domain.Role, agency domain.AgencyID) *http.Request {
	req.Header.Set(headerRole, string(role))
	req.Header.Set(headerAgency, string(agency))
	return req
}

// ActorFromHeaders is the test counterpart of the auth middleware. Requests
// without marks stay anonymous.
func ActorFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get(headerRole)
		if role == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := requestcontext.WithActor(r.Context(), requestcontext.ActorInfo{
			Subject:  role + "@example.fr",
			Role:     domain.Role(role),
			AgencyID: domain.AgencyID(r.Header.Get(headerAgency)),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithActor sets the actor directly on the request context.
func WithActor(req *http.Request, actor requestcontext.ActorInfo) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}
