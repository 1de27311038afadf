package engine

import "github.com/matheus3301/chatsync/internal/config"

// OptionsFrom maps the [sync] config section onto session options.
func OptionsFrom(self string, c config.Sync) Options {
	return Options{
		Self:          self,
		ConfirmWindow: c.ConfirmWindow.Duration,
		ClockSkew:     c.ClockSkew.Duration,
		RetryBackoff:  c.RetryBackoff.Duration,
		ReconnectBase: c.ReconnectBase.Duration,
		ReconnectMax:  c.ReconnectMax.Duration,
		FailedPolicy:  FailedPolicy(c.FailedPolicy),
	}
}
