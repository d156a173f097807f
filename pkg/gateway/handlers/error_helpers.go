package handlers

import (
	"net/http"

	"github.com/voxhall/answer-gateway/pkg/gateway/apierror"
)

func writeErrorJSON(w http.ResponseWriter, reqID string, e *apierror.Error, status int) {
	if e != nil && e.RequestID == "" {
		e.RequestID = reqID
	}
	apierror.Write(w, status, e)
}

func writeErrFrom(w http.ResponseWriter, reqID string, err error) {
	e, status := apierror.FromError(err, reqID)
	apierror.Write(w, status, e)
}
