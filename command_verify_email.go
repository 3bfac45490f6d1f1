package credentials

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type VerifyEmailMessage struct {
	Token      string `json:"token" doc:"Single-use verification token."`
	IP         string `json:"ip,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	OnResponse func(user *User)
}

func (e VerifyEmailMessage) Type() string { return "user.verify_email" }

type VerifyEmailHandler struct {
	actions *ActionTokenManager
}

func NewVerifyEmailHandler(actions *ActionTokenManager) *VerifyEmailHandler {
	return &VerifyEmailHandler{actions: actions}
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.actions.ConsumeEmailVerification(ctx, event.Token, RequestContext{
		IP:        event.IP,
		UserAgent: event.UserAgent,
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email verification failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
