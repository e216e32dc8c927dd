// Package clock abstracts time so expiry and backoff logic can be tested
// without sleeping.
package clock

import (
	"time"

	"go.uber.org/fx"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// New returns the real clock.
func New() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(New),
)
