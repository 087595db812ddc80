// Package utils holds request plumbing shared by the HTTP handlers.
package utils

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindRequest decodes the request body into T and validates it against the
// struct's validate tags. Both failure modes come back as 400s naming the
// offending fields.
func BindRequest[T any](c echo.Context) (T, error) {
	var v T

	if err := c.Bind(&v); err != nil {
		return v, httperror.WrapError(http.StatusBadRequest, err)
	}

	if err := validate.Struct(v); err != nil {
		return v, httperror.NewHTTPError(http.StatusBadRequest, validationMessage(err))
	}

	return v, nil
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		part := fmt.Sprintf("field '%s' failed rule '%s'", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			part = fmt.Sprintf("%s (%s)", part, fe.Param())
		}
		parts = append(parts, part)
	}

	return "invalid request: " + strings.Join(parts, "; ")
}
