// Package reconciler keeps the locally vaulted service credentials and the
// service's own credential state in agreement. The decision side is a pure
// function; the protocol side talks to the service and mutates the vault.
package reconciler

import (
	"context"

	"github.com/rs/zerolog"

	"streamhostd/internal/service"
	"streamhostd/internal/vault"
	"streamhostd/pkg/types"
)

// DeriveSyncState computes the credential sync state from the vault contents
// and the latest probe status. Pure and total; never cached, because both
// inputs change independently.
func DeriveSyncState(hasLocalCredentials bool, latestStatus types.ServiceStatus) types.SyncState {
	if !hasLocalCredentials {
		return types.SyncFirstTimeSetup
	}
	if latestStatus == types.StatusAuthRequired {
		return types.SyncDesync
	}
	return types.SyncNominal
}

// CredentialStore is the vault surface the reconciler needs.
type CredentialStore interface {
	IsAvailable() bool
	HasCredentials() (bool, error)
	SaveCredentials(types.Credentials) error
	LoadCredentials() (types.Credentials, bool, error)
}

// ServiceAPI is the subset of the service client the protocols use.
type ServiceAPI interface {
	InitializeCredentials(ctx context.Context, creds types.Credentials) error
	TestCredentials(ctx context.Context, creds types.Credentials) error
	ChangeCredentials(ctx context.Context, current, next types.Credentials) error
}

// ProbeForcer triggers an immediate re-probe after a protocol succeeds, since
// the published status is stale by definition at that point.
type ProbeForcer interface {
	ForceProbe(ctx context.Context) (types.ServiceStatus, error)
}

// ProcessController starts the managed service binary. Launching processes is
// handled outside this repository; the daemon only holds the seam.
type ProcessController interface {
	Start(ctx context.Context) error
}

// AppRegistrar installs the managed application entry into the service's
// configuration document.
type AppRegistrar interface {
	UpsertManagedApp(entry types.AppEntry) error
}

// NopProcessController is used when no external launcher is wired in.
type NopProcessController struct{}

func (NopProcessController) Start(ctx context.Context) error { return nil }

// Reconciler runs the first-time-setup and reconnect protocols.
type Reconciler struct {
	svc     ServiceAPI
	store   CredentialStore
	forcer  ProbeForcer
	proc    ProcessController
	apps    AppRegistrar
	managed types.AppEntry
	log     zerolog.Logger
}

// New constructs a reconciler. proc may be nil; a no-op controller is used.
func New(svc ServiceAPI, store CredentialStore, forcer ProbeForcer, proc ProcessController, apps AppRegistrar, managed types.AppEntry, log zerolog.Logger) *Reconciler {
	if proc == nil {
		proc = NopProcessController{}
	}
	return &Reconciler{
		svc:     svc,
		store:   store,
		forcer:  forcer,
		proc:    proc,
		apps:    apps,
		managed: managed,
		log:     log.With().Str("component", "reconciler").Logger(),
	}
}

// SyncState derives the current credential sync state from the vault and the
// given latest probe status.
func (r *Reconciler) SyncState(latestStatus types.ServiceStatus) (types.SyncState, error) {
	has, err := r.store.HasCredentials()
	if err != nil {
		if vault.IsUnavailable(err) {
			return "", ErrEncryptionUnavailable()
		}
		return "", err
	}
	return DeriveSyncState(has, latestStatus), nil
}

// FirstTimeSetup runs the initial-credential protocol: submit the pair to the
// service's unauthenticated initialization endpoint, persist it in the vault,
// start the service, and run the idempotent setup-completion routine. On
// success the monitor is forced to re-probe immediately.
func (r *Reconciler) FirstTimeSetup(ctx context.Context, creds types.Credentials) error {
	// Fail before touching the service: initializing it and then being
	// unable to persist the pair would strand the user.
	if !r.store.IsAvailable() {
		reconcilesTotal.WithLabelValues("setup", "encryption_unavailable").Inc()
		return ErrEncryptionUnavailable()
	}

	if err := r.svc.InitializeCredentials(ctx, creds); err != nil {
		return r.fail("setup", err)
	}
	if err := r.store.SaveCredentials(creds); err != nil {
		return r.fail("setup", err)
	}
	if err := r.proc.Start(ctx); err != nil {
		r.log.Error().Err(err).Msg("service start failed after credential init")
		return r.fail("setup", ErrServiceUnreachable(err.Error()))
	}
	if err := r.completeSetup(); err != nil {
		return r.fail("setup", err)
	}

	reconcilesTotal.WithLabelValues("setup", "ok").Inc()
	r.log.Info().Str("username", creds.Username).Msg("first-time setup completed")
	r.forceReprobe(ctx)
	return nil
}

// Reconnect runs the desync protocol: test the candidate pair against the
// service without mutating it, and replace the vault contents only when the
// test succeeds. A failed test leaves the vault untouched so the user can
// retry.
func (r *Reconciler) Reconnect(ctx context.Context, creds types.Credentials) error {
	if !r.store.IsAvailable() {
		reconcilesTotal.WithLabelValues("reconnect", "encryption_unavailable").Inc()
		return ErrEncryptionUnavailable()
	}

	if err := r.svc.TestCredentials(ctx, creds); err != nil {
		return r.fail("reconnect", err)
	}
	if err := r.store.SaveCredentials(creds); err != nil {
		return r.fail("reconnect", err)
	}

	reconcilesTotal.WithLabelValues("reconnect", "ok").Inc()
	r.log.Info().Str("username", creds.Username).Msg("credentials reconnected")
	r.forceReprobe(ctx)
	return nil
}

// ChangeCredentials rotates the service credentials, authenticating with the
// vaulted pair. The vault is updated only after the service accepts the new
// pair; a rejected change leaves both sides as they were.
func (r *Reconciler) ChangeCredentials(ctx context.Context, next types.Credentials) error {
	if !r.store.IsAvailable() {
		reconcilesTotal.WithLabelValues("change", "encryption_unavailable").Inc()
		return ErrEncryptionUnavailable()
	}
	current, ok, err := r.store.LoadCredentials()
	if err != nil {
		return r.fail("change", err)
	}
	if !ok {
		return r.fail("change", ErrInvalidCredentials("no stored credentials to authenticate with"))
	}

	if err := r.svc.ChangeCredentials(ctx, current, next); err != nil {
		return r.fail("change", err)
	}
	if err := r.store.SaveCredentials(next); err != nil {
		return r.fail("change", err)
	}

	reconcilesTotal.WithLabelValues("change", "ok").Inc()
	r.log.Info().Str("username", next.Username).Msg("credentials changed")
	r.forceReprobe(ctx)
	return nil
}

// completeSetup is the one-time setup routine. It is idempotent: every step
// is safe to repeat when an earlier attempt partially succeeded.
func (r *Reconciler) completeSetup() error {
	if r.apps == nil {
		return nil
	}
	return r.apps.UpsertManagedApp(r.managed)
}

func (r *Reconciler) forceReprobe(ctx context.Context) {
	if r.forcer == nil {
		return
	}
	if _, err := r.forcer.ForceProbe(ctx); err != nil {
		r.log.Warn().Err(err).Msg("forced re-probe failed")
	}
}

// fail translates lower-layer error kinds into the reconciler's
// distinguishable kinds and records the outcome.
func (r *Reconciler) fail(path string, err error) error {
	switch {
	case IsInvalidCredentials(err) || IsServiceUnreachable(err) || IsEncryptionUnavailable(err):
		// already one of ours
	case service.IsUnauthorized(err):
		err = ErrInvalidCredentials(err.Error())
	case service.IsUnreachable(err):
		err = ErrServiceUnreachable(err.Error())
	case vault.IsUnavailable(err):
		err = ErrEncryptionUnavailable()
	default:
		err = ErrServiceUnreachable(err.Error())
	}

	outcome := "unreachable"
	switch {
	case IsInvalidCredentials(err):
		outcome = "invalid_credentials"
	case IsEncryptionUnavailable(err):
		outcome = "encryption_unavailable"
	}
	reconcilesTotal.WithLabelValues(path, outcome).Inc()
	r.log.Warn().Err(err).Str("path", path).Msg("reconcile failed")
	return err
}
