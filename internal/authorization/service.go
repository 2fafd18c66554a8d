package authorization

import "context"

const (
	ObjectOrder           = "order"
	ObjectCheckIn         = "checkin"
	ObjectReviewQueue     = "review_queue"
	ObjectPaymentProvider = "payment_provider"
	ObjectPayout          = "payout"
)

const (
	ActionOrderMarkPaid = "order.mark_paid"
	ActionOrderCancel   = "order.cancel"
	ActionOrderExpire   = "order.expire"
	ActionOrderRefund   = "order.refund"

	ActionCheckInCreate = "checkin.create"

	ActionReviewView    = "review.view"
	ActionReviewResolve = "review.resolve"

	ActionPaymentProviderManage = "payment_provider.manage"

	ActionPayoutView   = "payout.view"
	ActionPayoutCreate = "payout.create"
)

// Actor strings take the form "system", "admin:<id>", "organizer:<uuid>" or
// "scanner:<id>".
type Service interface {
	Authorize(ctx context.Context, actor string, organizerID string, object string, action string) error
}
