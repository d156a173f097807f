package handlers

import (
	"net/http"

	"github.com/voxhall/answer-gateway/pkg/gateway/apierror"
	"github.com/voxhall/answer-gateway/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeErrorJSON(w, reqID, &apierror.Error{
		Type:    apierror.ErrNotFound,
		Message: "not found",
	}, http.StatusNotFound)
}
