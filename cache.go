/*
Copyright © 2019 the envlik authors.
This file is part of envlik.

envlik is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

envlik is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with envlik.  If not, see <http://www.gnu.org/licenses/>.
*/

package envlik

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/requestcache"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/envlik/internal/hash"
)

// CachedAccessor wraps an Accessor so that concurrent requests for the same
// date are only fetched once, recent fields are kept in memory, and
// transient fetch failures are retried.
type CachedAccessor struct {
	Accessor

	// CacheSize is the number of fields kept in memory.
	CacheSize int

	// Retries is the maximum number of times a failed fetch is retried.
	// Failures wrapping ErrDataUnavailable are not retried.
	Retries int

	// ID distinguishes the cache keys of different reference datasets.
	ID string

	Log logrus.FieldLogger

	init  sync.Once
	cache *requestcache.Cache
}

type cachedField struct {
	f   *GridField
	err error
}

// Fetch returns the reference field for date. The returned field is a copy
// that may be modified by the caller.
func (c *CachedAccessor) Fetch(ctx context.Context, date time.Time) (*GridField, error) {
	c.init.Do(func() {
		if c.Log == nil {
			c.Log = logrus.StandardLogger()
		}
		size := c.CacheSize
		if size < 1 {
			size = 1
		}
		// Fetch failures are kept in the payload so that a failing date
		// is only fetched once. Context errors belong to the first
		// requester and are not kept.
		c.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			f, err := c.fetch(ctx, request.(time.Time))
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return cachedField{f: f, err: err}, nil
		}, runtime.GOMAXPROCS(-1), requestcache.Deduplicate(), requestcache.Memory(size))
	})
	date = Day(date)
	req := c.cache.NewRequest(ctx, date, hash.Hash(c.ID, date))
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	r := result.(cachedField)
	if r.err != nil {
		return nil, r.err
	}
	return r.f.clone(), nil
}

// fetch retrieves the field for date from the wrapped accessor, retrying
// failures with exponential backoff.
func (c *CachedAccessor) fetch(ctx context.Context, date time.Time) (*GridField, error) {
	var f *GridField
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.Retries)), ctx)
	err := backoff.RetryNotify(
		func() error {
			var err error
			f, err = c.Accessor.Fetch(ctx, date)
			if errors.Is(err, ErrDataUnavailable) {
				return backoff.Permanent(err)
			}
			return err
		},
		b,
		func(err error, d time.Duration) {
			c.Log.WithFields(logrus.Fields{"date": date.Format(dateFormat), "wait": d}).WithError(err).Warn("envlik: retrying reference fetch")
		},
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return f, err
}

// clone returns a copy of g whose data can be modified without
// affecting g.
func (g *GridField) clone() *GridField {
	o := *g
	o.Data = sparse.ZerosDense(g.Data.Shape...)
	copy(o.Data.Elements, g.Data.Elements)
	return &o
}
