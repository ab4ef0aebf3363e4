package handler

import (
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// CustomValidator plugs go-playground/validator into echo. Field names in
// errors are the json tags of the request struct.
type CustomValidator struct {
	validate *validator.Validate
}

var pincodeRegex = regexp.MustCompile(`^[0-9A-Za-z -]{3,10}$`)

// NewValidator registers the custom rules used by the request DTOs.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("pincode", func(fl validator.FieldLevel) bool {
		return pincodeRegex.MatchString(fl.Field().String())
	})
	return &CustomValidator{validate: v}
}

// Validate implements echo.Validator.
func (cv *CustomValidator) Validate(i any) error {
	return cv.validate.Struct(i)
}

// bindValid binds the body into req and validates it. On failure it has
// already written the 400 response and returns a non-nil error; handlers
// then return nil.
func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return respondErr(c, http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			if werr := c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fields}); werr != nil {
				return werr
			}
			return errHandled
		}
		return respondErr(c, http.StatusBadRequest, err.Error())
	}
	return nil
}

// errHandled marks a response that was already written.
var errHandled = errors.New("response written")

func respondErr(c echo.Context, status int, msg string) error {
	if err := c.JSON(status, echo.Map{"error": msg}); err != nil {
		return err
	}
	return errHandled
}
