package subscriptions

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/campusdesk/campusdesk-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

func subscriptionFromStripe(sub *stripe.Subscription) *Subscription {
	if sub == nil {
		return nil
	}
	out := &Subscription{
		ID:                sub.ID,
		Status:            mapStatus(string(sub.Status)),
		Currency:          strings.ToLower(string(sub.Currency)),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelAt:          toTimePtr(sub.CancelAt),
		CanceledAt:        toTimePtr(sub.CanceledAt),
		Metadata:          copyMetadata(sub.Metadata),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
		out.CustomerEmail = sub.Customer.Email
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		item := sub.Items.Data[0]
		out.ItemID = item.ID
		out.CurrentPeriodStart = toTime(item.CurrentPeriodStart)
		out.CurrentPeriodEnd = toTime(item.CurrentPeriodEnd)
		if price := item.Price; price != nil {
			out.PriceID = price.ID
			out.UnitAmount = fromCents(price.UnitAmount)
			if out.Currency == "" {
				out.Currency = strings.ToLower(string(price.Currency))
			}
			out.PlanName = price.Nickname
			if out.PlanName == "" && price.Recurring != nil {
				out.PlanName = planFromInterval(string(price.Recurring.Interval), price.Recurring.IntervalCount)
			}
			if price.Product != nil {
				out.ProductID = price.Product.ID
				out.ProductName = price.Product.Name
			}
		}
	}
	return out
}

func invoiceFromStripe(inv *stripe.Invoice, subscriptionID string) *Invoice {
	if inv == nil {
		return nil
	}
	out := &Invoice{
		ID:              inv.ID,
		SubscriptionID:  subscriptionID,
		CustomerEmail:   inv.CustomerEmail,
		Currency:        strings.ToLower(string(inv.Currency)),
		AmountPaid:      fromCents(inv.AmountPaid),
		AmountDue:       fromCents(inv.AmountDue),
		AmountRemaining: fromCents(inv.AmountRemaining),
		PeriodStart:     toTimePtr(inv.PeriodStart),
		PeriodEnd:       toTimePtr(inv.PeriodEnd),
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	var discounted int64
	for _, amount := range inv.TotalDiscountAmounts {
		if amount != nil {
			discounted += amount.Amount
		}
	}
	if discounted > 0 && inv.Subtotal > 0 {
		out.DiscountPercentage = decimal.NewFromInt(discounted).
			Mul(hundred).
			Div(decimal.NewFromInt(inv.Subtotal)).
			Round(2)
	}
	return out
}

func checkoutFromStripe(session *stripe.CheckoutSession) *CheckoutCompletion {
	if session == nil {
		return nil
	}
	out := &CheckoutCompletion{
		SessionID:         session.ID,
		CustomerEmail:     session.CustomerEmail,
		ClientReferenceID: session.ClientReferenceID,
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	if out.CustomerEmail == "" && session.CustomerDetails != nil {
		out.CustomerEmail = session.CustomerDetails.Email
	}
	return out
}

func mapStatus(raw string) enums.SubscriptionStatus {
	status, err := enums.ParseSubscriptionStatus(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return enums.SubscriptionStatusCanceled
	}
	return status
}

func planFromInterval(interval string, count int64) string {
	switch {
	case interval == "month" && count <= 1:
		return string(enums.LicensePlanMonthly)
	case interval == "month" && count == 3:
		return string(enums.LicensePlanQuarterly)
	case interval == "month" && count == 6:
		return string(enums.LicensePlanHalfYearly)
	case interval == "year":
		return string(enums.LicensePlanYearly)
	default:
		return string(enums.LicensePlanCustom)
	}
}

// fromCents converts a minor-unit amount to a two-decimal value.
func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func toTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
