// Package credits provides a credit ledger that reconciles asynchronous
// payment processor callbacks and meters expensive generation actions.
//
// Credits is designed as a library. Import it into your Go service, or run
// the bundled creditsd server. It provides:
//
//   - Exactly-once crediting of Stripe and NOWPayments callbacks
//   - Provisional debits around failure-prone external calls, with refunds
//   - Free-action allotments and per-origin signup grants
//   - Audited administrator grants
//   - Pluggable lifecycle hooks for audit trails and metrics
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/credits"
//	    "github.com/xraph/credits/store/memory"
//	)
//
//	e := credits.New(memory.New())
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
// # Metered actions
//
// Run debits the account before calling the generator and refunds the
// debit if the generator fails or times out:
//
//	action, _ := credits.NewMeteredAction(userID, reservation.ActionPlan, 0)
//	out, err := e.Run(ctx, action, credits.GeneratorFunc(func(ctx context.Context) (any, error) {
//	    return model.Plan(ctx, prompt)
//	}))
//	switch {
//	case errors.Is(err, credits.ErrInsufficientCredits):
//	    // Nothing was debited.
//	case errors.Is(err, credits.ErrRefundFailed):
//	    // Needs operator reconciliation.
//	case errors.Is(err, credits.ErrGenerationFailed):
//	    // Refunded; no credits were charged.
//	}
//
// # Payments
//
// Webhook verifiers in webhook/stripe and webhook/nowpayments turn signed
// callbacks into payment.Event values. ApplyPayment credits each event id
// at most once:
//
//	res, err := verifier.Verify(ctx, body, r.Header)
//	if err == nil && !res.Ignored {
//	    _, err = e.ApplyPayment(ctx, res.Event)
//	}
//
// # TypeID
//
// Reservations and grants use TypeIDs:
//
//	rsv_01h2xcejqtf2nbrexx3vqjhp41   // Reservation ID
//	grnt_01h455vb4pex5vsknk084sn02q  // Grant ID
package credits
