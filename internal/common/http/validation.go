package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ReadBody returns the raw request body; signed requests need the exact bytes.
func ReadBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, commonerrors.ErrInvalidRequest.WithDetails(map[string]any{"body": "too large"})
		}
		return nil, commonerrors.ErrInvalidJSON.WithCause(err)
	}
	return body, nil
}

// DecodeJSON decodes with json.Number so numeric fields keep their original spelling.
func DecodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return commonerrors.ErrInvalidJSON.WithCause(err)
	}
	return nil
}

func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return commonerrors.ErrInvalidRequest.WithCause(err)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return commonerrors.ErrInvalidRequest.WithDetails(details)
}

func DecodeAndValidate(r *http.Request, v any) ([]byte, error) {
	body, err := ReadBody(r)
	if err != nil {
		return nil, err
	}
	if err := DecodeJSON(body, v); err != nil {
		return nil, err
	}
	if err := ValidateStruct(v); err != nil {
		return nil, err
	}
	return body, nil
}
