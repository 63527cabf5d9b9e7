// Package httpx writes JSON responses and decodes validated JSON requests.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"feedcast/internal/apperr"
)

const maxBodyBytes = 1 << 20

// KeyInvalid is the error key of a body that fails decoding or validation.
const KeyInvalid = "validation.invalid"

var validate = validator.New(validator.WithRequiredStructEnabled())

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		v = struct{}{}
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// Error writes {"errorKey": ...} with the status of err's kind. Internal
// errors are logged and never leak their message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path}).Errorf("Internal error: %v", err)
	}
	JSON(w, kind.HTTPStatus(), map[string]string{"errorKey": apperr.KeyOf(err)})
}

// Decode reads a JSON body into dst and validates its struct tags.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, KeyInvalid, err)
	}
	return Validate(dst)
}

func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return apperr.Internal(err)
		}
		return apperr.Wrap(apperr.KindValidation, KeyInvalid, err)
	}
	return nil
}
