package httpapi

import (
	"encoding/json"
	"net/http"
)

// opaqueMessage is the stock message for any non-domain error, matching
// spec.md §6 "other errors are opaque."
const opaqueMessage = "Internal Server Error. Please try again later."

// errorResponse is spec.md §6's uncaught-exception response shape.
type errorResponse struct {
	Message   string  `json:"message"`
	Exception *string `json:"exception,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"` + opaqueMessage + `"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError implements spec.md §6 "domain errors leak their message;
// other errors are opaque."
func writeError(w http.ResponseWriter, err error) {
	if de, ok := err.(domainError); ok {
		msg := de.Error()
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: msg})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Message: opaqueMessage})
}

func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
