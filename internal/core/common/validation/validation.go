package validation

import (
	"fmt"
	"regexp"
	"strings"

	errors "github.com/frahmantamala/payconfirm/internal"
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

type ValidationBuilder struct {
	fields []FieldValidator
	errors []errors.ValidationError
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{
		fields: make([]FieldValidator, 0),
		errors: make([]errors.ValidationError, 0),
	}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := FieldValidator{
		FieldName:  name,
		Value:      value,
		Validators: make([]ValidatorFunc, 0),
	}
	v.fields = append(v.fields, fv)
	return &v.fields[len(v.fields)-1]
}

func (fv *FieldValidator) Required() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		case int64:
			if v == 0 {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		case *string:
			if v == nil || *v == "" {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MinInt(min int64, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(int64); ok {
			if v < min {
				message := fmt.Sprintf("%s must be at least %d", fv.FieldName, min)
				if fv.FieldName == "amount" {
					if min <= 1 {
						message = "amount must be a positive whole number"
					} else {
						message = fmt.Sprintf("Minimum amount is KES %d", min)
					}
				}
				return errors.NewValidationFieldError(fv.FieldName, message, code)
			}
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MaxLength(max int, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok {
			if len(v) > max {
				message := fmt.Sprintf("%s must not exceed %d characters", fv.FieldName, max)
				return errors.NewValidationFieldError(fv.FieldName, message, code)
			}
		}
		return nil
	})
	return fv
}

// Phone checks that the value normalizes to a mobile-money MSISDN.
func (fv *FieldValidator) Phone() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok {
			if _, valid := NormalizePhone(v); !valid {
				return errors.NewValidationFieldError(fv.FieldName, "Enter a valid M-PESA phone number", errors.ErrCodeInvalidPhone)
			}
		}
		return nil
	})
	return fv
}

func (v *ValidationBuilder) Validate() *errors.AppError {
	var validationErrors []errors.ValidationError

	for _, field := range v.fields {
		for _, validator := range field.Validators {
			appErr := validator(field.Value)
			if appErr == nil {
				continue
			}
			if details, ok := appErr.Details.(errors.ValidationErrors); ok {
				validationErrors = append(validationErrors, details.Errors...)
			} else {
				validationErrors = append(validationErrors, errors.ValidationError{
					Field:   field.FieldName,
					Message: appErr.Message,
					Code:    string(appErr.Code),
				})
			}
			// first failure per field is enough for a form message
			break
		}
	}

	if len(validationErrors) > 0 {
		return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
			WithDetails(errors.ValidationErrors{Errors: validationErrors})
	}

	return nil
}

var (
	nonDigits    = regexp.MustCompile(`[^0-9]`)
	kenyanMSISDN = regexp.MustCompile(`^254[17]\d{8}$`)
)

// NormalizePhone converts a local or international Kenyan mobile number to
// the 254XXXXXXXXX form. The second return value reports whether the
// normalized number is a valid Safaricom/Airtel MSISDN.
func NormalizePhone(phone string) (string, bool) {
	cleaned := nonDigits.ReplaceAllString(phone, "")

	switch {
	case strings.HasPrefix(cleaned, "254"):
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "254" + cleaned[1:]
	case len(cleaned) == 9 && (cleaned[0] == '7' || cleaned[0] == '1'):
		cleaned = "254" + cleaned
	}

	return cleaned, kenyanMSISDN.MatchString(cleaned)
}

// ValidatePaymentRequest checks the initiation input. The same rules run on
// the client before any network call and on the server before the gateway call.
func ValidatePaymentRequest(phone string, amount int64, label string, minimumAmount int64) *errors.AppError {
	validator := NewValidator()
	validator.Field("phone", phone).
		Required().
		Phone()
	validator.Field("amount", amount).
		MinInt(1, errors.ErrCodeInvalidAmount).
		MinInt(minimumAmount, errors.ErrCodeAmountTooLow)
	validator.Field("label", label).
		Required().
		MaxLength(120, errors.ErrCodeInvalidLabel)
	return validator.Validate()
}
