package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"dedicated/internal/domain"
	"dedicated/internal/service"
)

func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(jsonFieldName)
	_ = v.RegisterValidation("booking_status", validateBookingStatus)
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func validateBookingStatus(fl validator.FieldLevel) bool {
	return domain.BookingStatus(fl.Field().String()).IsValid()
}

// validationFields converts binding failures into per-field messages.
func validationFields(err error) (map[string]string, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, ok := fields[fe.Field()]; !ok {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}
	return fields, true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "datetime":
		switch fe.Param() {
		case dateLayout:
			return "must be a YYYY-MM-DD date"
		case time.RFC3339:
			return "must be an RFC3339 timestamp"
		}
		return "must match " + fe.Param()
	case "booking_status":
		return "is not a known booking status"
	default:
		return "is invalid"
	}
}

// bindJSON decodes the request body into obj. Malformed bodies and failed
// field rules are answered with 400 and false is returned.
func bindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	if fields, ok := validationFields(err); ok {
		respondError(c, &service.ValidationError{Fields: fields})
		return false
	}
	respondBadRequest(c, "invalid request body")
	return false
}
