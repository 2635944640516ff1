package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/logger"
)

const maxBodyBytes = 1 << 20

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to an API error and writes its body.
// 5xx causes are logged; they never reach the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := svcErr.Map(err)
	log := logger.FromContext(r.Context(), nil)
	if apiErr.Status >= http.StatusInternalServerError {
		log.Error("request failed", "status", apiErr.Status, "code", apiErr.Code, "err", err)
	} else {
		log.Debug("request rejected", "status", apiErr.Status, "code", apiErr.Code, "err", err)
	}
	WriteJSON(w, apiErr.Status, apiErr.Body())
}

// DecodeJSON reads the request body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return svcErr.InvalidArgument("invalid_body", "request body must be a JSON object")
	}
	return nil
}

// ID is a user id on the wire. It encodes as a decimal string and decodes from
// either a string or a number.
type ID uint64

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(id), 10))
}

func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*id = ID(n)
	return nil
}
