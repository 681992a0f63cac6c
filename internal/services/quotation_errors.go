package services

import (
	"errors"
	"fmt"

	"github.com/hanko-field/quotations/internal/repositories"
)

var (
	// ErrQuotationNotFound indicates the quotation, group, or item could not be located.
	ErrQuotationNotFound = errors.New("quotation: not found")
	// ErrQuotationInvalidParam signals malformed or inconsistent input values.
	ErrQuotationInvalidParam = errors.New("quotation: invalid parameter")
	// ErrQuotationInvalid signals a status gate violation or an unavailable fulfillment method.
	ErrQuotationInvalid = errors.New("quotation: invalid")
	// ErrQuotationAccessDenied indicates the capability check rejected the actor.
	ErrQuotationAccessDenied = errors.New("quotation: access denied")
	// ErrQuotationPaymentFailed indicates payment verification or authorization failed.
	ErrQuotationPaymentFailed = errors.New("quotation: payment failed")
	// ErrQuotationServerError indicates the store reported no effect for a validated update.
	ErrQuotationServerError = errors.New("quotation: server error")
	// ErrQuotationUnavailable indicates the backing store is temporarily unavailable.
	ErrQuotationUnavailable = errors.New("quotation: unavailable")
)

func mapQuotationRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrQuotationNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrQuotationServerError, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrQuotationUnavailable, err)
		}
	}

	return err
}
