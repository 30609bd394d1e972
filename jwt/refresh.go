package jwtkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultRefreshSchedule re-fetches the keystore hourly.
const DefaultRefreshSchedule = "@every 1h"

// Refresher periodically re-runs a FetchFunc and publishes the result into a
// KeystoreHolder. A failed refresh leaves the previous snapshot in service.
type Refresher struct {
	holder  *KeystoreHolder
	fetch   FetchFunc
	log     logrus.FieldLogger
	timeout time.Duration
	cron    *cron.Cron
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithRefreshLogger sets the logger used for refresh outcomes.
func WithRefreshLogger(l logrus.FieldLogger) RefresherOption {
	return func(r *Refresher) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRefreshTimeout bounds each scheduled fetch. Defaults to 30 seconds.
func WithRefreshTimeout(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRefresher builds a refresher; call Schedule and Start to run it.
func NewRefresher(holder *KeystoreHolder, fetch FetchFunc, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		holder:  holder,
		fetch:   fetch,
		log:     logrus.StandardLogger(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("tag", "keystore-refresh")
	logger := cron.PrintfLogger(r.log)
	r.cron = cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	return r
}

// Schedule registers the refresh job using a cron spec (e.g. "@every 15m").
func (r *Refresher) Schedule(spec string) error {
	if r.fetch == nil {
		return errors.New("jwtkit: refresher has no fetch function")
	}
	if spec == "" {
		spec = DefaultRefreshSchedule
	}
	if _, err := r.cron.AddFunc(spec, r.run); err != nil {
		return fmt.Errorf("schedule keystore refresh %q: %w", spec, err)
	}
	return nil
}

// Start begins running scheduled refreshes in the background.
func (r *Refresher) Start() { r.cron.Start() }

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

// RefreshNow fetches and publishes a new snapshot immediately.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	if r.fetch == nil {
		return errors.New("jwtkit: refresher has no fetch function")
	}
	ks, err := r.fetch(ctx)
	if err != nil {
		return fmt.Errorf("refresh keystore: %w", err)
	}
	if ks == nil || ks.Len() == 0 {
		return fmt.Errorf("refresh keystore: %w", ErrEmptyKeystore)
	}
	r.holder.Store(ks)
	r.log.WithField("kids", ks.KeyIDs()).Info("keystore refreshed")
	return nil
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.RefreshNow(ctx); err != nil {
		r.log.WithError(err).Error("keystore refresh failed; keeping previous snapshot")
	}
}
