package session

import (
	"encoding/json"
	"net/http"

	"github.com/cccteam/httpio"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeValid decodes the JSON request body into v and validates it.
func decodeValid(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return httpio.NewBadRequestMessageWithError(err, "invalid request body")
	}

	if err := validate.StructCtx(r.Context(), v); err != nil {
		return httpio.NewBadRequestMessageWithError(err, "invalid request")
	}

	return nil
}
