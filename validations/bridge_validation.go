package validations

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	domainControl "github.com/agentwa/wabridge/domains/control"
	"github.com/agentwa/wabridge/domains/policy"
	"github.com/agentwa/wabridge/pkg/apperr"
)

func ValidateSend(ctx context.Context, request domainControl.SendRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.To, validation.Required),
		validation.Field(&request.Text, validation.Required),
	)

	if err != nil {
		return apperr.ValidationError(err.Error())
	}

	return nil
}

func ValidatePairingApprove(ctx context.Context, request domainControl.PairingApproveRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Code, validation.Required, is.Digit, validation.Length(6, 6)),
	)

	if err != nil {
		return apperr.ValidationError(err.Error())
	}

	return nil
}

func ValidateAllowlistAdd(ctx context.Context, request domainControl.AllowlistRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Phone, validation.Required),
	)

	if err != nil {
		return apperr.ValidationError(err.Error())
	}

	return nil
}

func ValidateGroupUpsert(ctx context.Context, request domainControl.GroupRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.GroupID, validation.Required),
		validation.Field(&request.Mode, validation.In(
			string(policy.ModeAll),
			string(policy.ModeMentions),
			string(policy.ModeObserve),
		)),
	)

	if err != nil {
		return apperr.ValidationError(err.Error())
	}

	return nil
}
