package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/eventreg/internal/authorization"
	checkindomain "github.com/smallbiznis/eventreg/internal/checkin/domain"
	eventdomain "github.com/smallbiznis/eventreg/internal/event/domain"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	paymentproviderdomain "github.com/smallbiznis/eventreg/internal/paymentprovider/domain"
	"github.com/smallbiznis/eventreg/internal/pricing"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	voucherdomain "github.com/smallbiznis/eventreg/internal/voucher/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Code
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    "invalid_request",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	// checkout input is reported field by field
	var orderErr *orderdomain.ValidationError
	if errors.As(err, &orderErr) && orderErr != nil {
		fields := make([]ValidationError, 0, len(orderErr.Fields))
		for _, f := range orderErr.Fields {
			fields = append(fields, ValidationError{Field: f.Field, Code: "invalid_" + lastSegment(f.Field), Message: f.Message})
		}
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "validation_error",
			Code:    "validation_failed",
			Message: "validation error",
			Errors:  fields,
		}
	}

	if isValidationError(err) {
		code := codeOf(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    code,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Code:    codeOf(err),
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Code:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    codeOf(err),
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    codeOf(err),
			Message: conflictMessage(err),
		}
	case errors.Is(err, settlementdomain.ErrReconciliationMismatch):
		return http.StatusAccepted, errorPayload{
			Type:    "review_required",
			Code:    settlementdomain.ErrReconciliationMismatch.Error(),
			Message: "recorded for review",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrProviderUnavailable),
		errors.Is(err, checkindomain.ErrSigningKeyMissing):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Code:    codeOf(err),
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pricing.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrVoucherNotApplicable),
		errors.Is(err, pricing.ErrTicketTypeInactive),
		errors.Is(err, eventdomain.ErrEventNotOpen),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrCallbackUnsupported),
		errors.Is(err, paymentproviderdomain.ErrInvalidProvider),
		errors.Is(err, paymentproviderdomain.ErrInvalidConfig),
		errors.Is(err, paymentproviderdomain.ErrInvalidOrganization),
		errors.Is(err, settlementdomain.ErrInvalidTransition),
		errors.Is(err, settlementdomain.ErrInvalidSource),
		errors.Is(err, settlementdomain.ErrRefundRequiresManual),
		errors.Is(err, settlementdomain.ErrInvalidPayoutPeriod),
		errors.Is(err, checkindomain.ErrInvalidMethod),
		errors.Is(err, checkindomain.ErrInvalidTicketCode),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidOrganizer):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, eventdomain.ErrEventNotFound),
		errors.Is(err, eventdomain.ErrTicketTypeNotFound),
		errors.Is(err, voucherdomain.ErrVoucherNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, paymentproviderdomain.ErrNotFound),
		errors.Is(err, settlementdomain.ErrReviewItemNotFound),
		errors.Is(err, checkindomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, pricing.ErrCapacityExceeded),
		errors.Is(err, voucherdomain.ErrVoucherExhausted),
		errors.Is(err, orderdomain.ErrOrderNotPending),
		errors.Is(err, orderdomain.ErrPaymentInProgress),
		errors.Is(err, settlementdomain.ErrAlreadyTerminal),
		errors.Is(err, settlementdomain.ErrReviewAlreadyResolved),
		errors.Is(err, settlementdomain.ErrNoTransactionsForPayout),
		errors.Is(err, checkindomain.ErrNotPaid),
		errors.Is(err, checkindomain.ErrAlreadyCheckedIn):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, pricing.ErrCapacityExceeded):
		return "ticket capacity exceeded"
	case errors.Is(err, voucherdomain.ErrVoucherExhausted):
		return "voucher quota exhausted"
	case errors.Is(err, settlementdomain.ErrAlreadyTerminal):
		return "order already settled"
	case errors.Is(err, orderdomain.ErrPaymentInProgress):
		return "payment already in progress"
	default:
		return "conflict"
	}
}

// codeOf returns the innermost sentinel text of err.
func codeOf(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func lastSegment(field string) string {
	if idx := strings.LastIndex(field, "."); idx >= 0 {
		return field[idx+1:]
	}
	return field
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return strings.ReplaceAll(code, "_", " ")
	}
}
