package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"reservo/pkg/logger"
	"reservo/pkg/model"

	"github.com/go-playground/validator/v10"
)

// Room ids end up inside lock keys, so the key separator is not allowed.
var roomIDRegex = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Details flattens the errors into the map carried by a validation AppError.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, err := range v {
		details[err.Field] = err.Message
	}
	return details
}

type ReservationValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewReservationValidator(log *logger.Logger) *ReservationValidator {
	v := validator.New()

	if err := v.RegisterValidation("roomid", validateRoomID); err != nil {
		log.Fatal("Failed to register 'roomid' validator",
			"error", err,
		)
	}

	return &ReservationValidator{
		validate: v,
		logger:   log,
	}
}

func validateRoomID(fl validator.FieldLevel) bool {
	return roomIDRegex.MatchString(fl.Field().String())
}

func (v *ReservationValidator) ValidateRequest(req *model.ReservationRequest) error {
	if err := v.structErr(req); err != nil {
		return err
	}
	return checkRange(req.StartTime, req.EndTime)
}

// ValidateSlot checks the new fields of a change request.
func (v *ReservationValidator) ValidateSlot(slot *model.Slot) error {
	if err := v.structErr(slot); err != nil {
		return err
	}
	return checkRange(slot.StartTime, slot.EndTime)
}

func (v *ReservationValidator) ValidateCaller(caller model.Caller) error {
	return v.structErr(caller)
}

func (v *ReservationValidator) ValidateResponse(resp *model.ProposalResponse) error {
	return v.structErr(resp)
}

func (v *ReservationValidator) structErr(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func checkRange(start, end time.Time) error {
	if !end.After(start) {
		return ValidationErrors{
			ValidationError{
				Field:   "EndTime",
				Message: "end_time must be after start_time",
			},
		}
	}
	return nil
}

func (v *ReservationValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", err.Field(), err.Param())
		case "roomid":
			message = fmt.Sprintf("%s must be 1-128 letters, digits, '.', '_' or '-'", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
