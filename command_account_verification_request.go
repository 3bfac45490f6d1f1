package credentials

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type AccountVerificationMessage struct {
	Email     string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

func (e AccountVerificationMessage) Type() string { return "user.verification_request" }

type AccountVerificationHandler struct {
	auther *Auther
}

func NewAccountVerificationHandler(auther *Auther) *AccountVerificationHandler {
	return &AccountVerificationHandler{auther: auther}
}

func (h *AccountVerificationHandler) Execute(ctx context.Context, event AccountVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountVerificationHandler) execute(ctx context.Context, event AccountVerificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.auther.RequestEmailVerification(ctx, event.Email, RequestContext{
		IP:        event.IP,
		UserAgent: event.UserAgent,
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "verification request failed")
	}

	return nil
}
