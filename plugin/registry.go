package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/reservation"
)

// DefaultHookTimeout bounds how long a single hook may run.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onAccountCreated      []OnAccountCreated
	onCreditsReserved     []OnCreditsReserved
	onCreditsCommitted    []OnCreditsCommitted
	onCreditsRefunded     []OnCreditsRefunded
	onRefundFailed        []OnRefundFailed
	onInsufficientCredits []OnInsufficientCredits
	onWebhookReceived     []OnWebhookReceived
	onSignatureRejected   []OnSignatureRejected
	onPaymentApplied      []OnPaymentApplied
	onDuplicateEvent      []OnDuplicateEvent
	onPaymentUnresolved   []OnPaymentUnresolved
	onAdminGrant          []OnAdminGrant
	onGrantDenied         []OnGrantDenied
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
	}
	if v, ok := p.(OnCreditsReserved); ok {
		r.onCreditsReserved = append(r.onCreditsReserved, v)
	}
	if v, ok := p.(OnCreditsCommitted); ok {
		r.onCreditsCommitted = append(r.onCreditsCommitted, v)
	}
	if v, ok := p.(OnCreditsRefunded); ok {
		r.onCreditsRefunded = append(r.onCreditsRefunded, v)
	}
	if v, ok := p.(OnRefundFailed); ok {
		r.onRefundFailed = append(r.onRefundFailed, v)
	}
	if v, ok := p.(OnInsufficientCredits); ok {
		r.onInsufficientCredits = append(r.onInsufficientCredits, v)
	}
	if v, ok := p.(OnWebhookReceived); ok {
		r.onWebhookReceived = append(r.onWebhookReceived, v)
	}
	if v, ok := p.(OnSignatureRejected); ok {
		r.onSignatureRejected = append(r.onSignatureRejected, v)
	}
	if v, ok := p.(OnPaymentApplied); ok {
		r.onPaymentApplied = append(r.onPaymentApplied, v)
	}
	if v, ok := p.(OnDuplicateEvent); ok {
		r.onDuplicateEvent = append(r.onDuplicateEvent, v)
	}
	if v, ok := p.(OnPaymentUnresolved); ok {
		r.onPaymentUnresolved = append(r.onPaymentUnresolved, v)
	}
	if v, ok := p.(OnAdminGrant); ok {
		r.onAdminGrant = append(r.onAdminGrant, v)
	}
	if v, ok := p.(OnGrantDenied); ok {
		r.onGrantDenied = append(r.onGrantDenied, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnAccountCreated", reflect.TypeOf((*OnAccountCreated)(nil)).Elem()},
	{"OnCreditsReserved", reflect.TypeOf((*OnCreditsReserved)(nil)).Elem()},
	{"OnCreditsCommitted", reflect.TypeOf((*OnCreditsCommitted)(nil)).Elem()},
	{"OnCreditsRefunded", reflect.TypeOf((*OnCreditsRefunded)(nil)).Elem()},
	{"OnRefundFailed", reflect.TypeOf((*OnRefundFailed)(nil)).Elem()},
	{"OnInsufficientCredits", reflect.TypeOf((*OnInsufficientCredits)(nil)).Elem()},
	{"OnWebhookReceived", reflect.TypeOf((*OnWebhookReceived)(nil)).Elem()},
	{"OnSignatureRejected", reflect.TypeOf((*OnSignatureRejected)(nil)).Elem()},
	{"OnPaymentApplied", reflect.TypeOf((*OnPaymentApplied)(nil)).Elem()},
	{"OnDuplicateEvent", reflect.TypeOf((*OnDuplicateEvent)(nil)).Elem()},
	{"OnPaymentUnresolved", reflect.TypeOf((*OnPaymentUnresolved)(nil)).Elem()},
	{"OnAdminGrant", reflect.TypeOf((*OnAdminGrant)(nil)).Elem()},
	{"OnGrantDenied", reflect.TypeOf((*OnGrantDenied)(nil)).Elem()},
}

// implementedInterfaces returns the hook interfaces implemented by the plugin.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAccountCreated calls OnAccountCreated for all plugins that implement it.
func (r *Registry) EmitAccountCreated(ctx context.Context, a *account.Account) {
	r.mu.RLock()
	plugins := r.onAccountCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccountCreated(ctx, a)
		}); err != nil {
			r.logger.Warn("plugin OnAccountCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsReserved calls OnCreditsReserved for all plugins that implement it.
func (r *Registry) EmitCreditsReserved(ctx context.Context, rsv *reservation.Reservation) {
	r.mu.RLock()
	plugins := r.onCreditsReserved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsReserved(ctx, rsv)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsReserved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsCommitted calls OnCreditsCommitted for all plugins that implement it.
func (r *Registry) EmitCreditsCommitted(ctx context.Context, rsv *reservation.Reservation, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onCreditsCommitted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsCommitted(ctx, rsv, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsCommitted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsRefunded calls OnCreditsRefunded for all plugins that implement it.
func (r *Registry) EmitCreditsRefunded(ctx context.Context, rsv *reservation.Reservation, cause error) {
	r.mu.RLock()
	plugins := r.onCreditsRefunded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsRefunded(ctx, rsv, cause)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsRefunded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRefundFailed calls OnRefundFailed for all plugins that implement it.
func (r *Registry) EmitRefundFailed(ctx context.Context, rsv *reservation.Reservation, cause, refundErr error) {
	r.mu.RLock()
	plugins := r.onRefundFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRefundFailed(ctx, rsv, cause, refundErr)
		}); err != nil {
			r.logger.Warn("plugin OnRefundFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInsufficientCredits calls OnInsufficientCredits for all plugins that implement it.
func (r *Registry) EmitInsufficientCredits(ctx context.Context, accountID string, action reservation.Action, cost int64) {
	r.mu.RLock()
	plugins := r.onInsufficientCredits
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInsufficientCredits(ctx, accountID, action, cost)
		}); err != nil {
			r.logger.Warn("plugin OnInsufficientCredits failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitWebhookReceived calls OnWebhookReceived for all plugins that implement it.
func (r *Registry) EmitWebhookReceived(ctx context.Context, provider string, payload []byte) {
	r.mu.RLock()
	plugins := r.onWebhookReceived
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnWebhookReceived(ctx, provider, payload)
		}); err != nil {
			r.logger.Warn("plugin OnWebhookReceived failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSignatureRejected calls OnSignatureRejected for all plugins that implement it.
func (r *Registry) EmitSignatureRejected(ctx context.Context, provider string, reason error) {
	r.mu.RLock()
	plugins := r.onSignatureRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSignatureRejected(ctx, provider, reason)
		}); err != nil {
			r.logger.Warn("plugin OnSignatureRejected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentApplied calls OnPaymentApplied for all plugins that implement it.
func (r *Registry) EmitPaymentApplied(ctx context.Context, ev *payment.Event) {
	r.mu.RLock()
	plugins := r.onPaymentApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentApplied(ctx, ev)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentApplied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDuplicateEvent calls OnDuplicateEvent for all plugins that implement it.
func (r *Registry) EmitDuplicateEvent(ctx context.Context, ev *payment.Event) {
	r.mu.RLock()
	plugins := r.onDuplicateEvent
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDuplicateEvent(ctx, ev)
		}); err != nil {
			r.logger.Warn("plugin OnDuplicateEvent failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentUnresolved calls OnPaymentUnresolved for all plugins that implement it.
func (r *Registry) EmitPaymentUnresolved(ctx context.Context, ev *payment.Event) {
	r.mu.RLock()
	plugins := r.onPaymentUnresolved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentUnresolved(ctx, ev)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentUnresolved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAdminGrant calls OnAdminGrant for all plugins that implement it.
func (r *Registry) EmitAdminGrant(ctx context.Context, g *grant.Grant) {
	r.mu.RLock()
	plugins := r.onAdminGrant
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAdminGrant(ctx, g)
		}); err != nil {
			r.logger.Warn("plugin OnAdminGrant failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitGrantDenied calls OnGrantDenied for all plugins that implement it.
func (r *Registry) EmitGrantDenied(ctx context.Context, actorID, accountID string, reason error) {
	r.mu.RLock()
	plugins := r.onGrantDenied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnGrantDenied(ctx, actorID, accountID, reason)
		}); err != nil {
			r.logger.Warn("plugin OnGrantDenied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins never block the debit or webhook pipeline for longer than it.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
