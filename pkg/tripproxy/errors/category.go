// Package errors classifies upstream fetch failures and retries the
// transient ones.
//
// Categorize decides whether a failure is worth another attempt,
// WithRetryContext repeats transient failures with capped exponential
// backoff (honoring Retry-After), and Handler adds logging and callbacks on
// top for the proxy's fetch path.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Category says whether another attempt might succeed.
type Category int

const (
	// CategoryTransient failures may clear up: 429/502/503/504 responses,
	// timeouts, refused or reset connections.
	CategoryTransient Category = iota

	// CategoryPermanent failures will repeat: other 4xx responses,
	// cancelled requests, and anything unrecognized.
	CategoryPermanent
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CategorizedError pins a category on an error, overriding Categorize's
// rules, and records how many attempts were made.
type CategorizedError struct {
	Err      error
	Category Category

	// Retries is the number of attempts made before giving up.
	Retries int

	// Context names the operation or the reason the loop stopped.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	msg := fmt.Sprintf("%s (category: %s, attempts: %d)", e.Err, e.Category, e.Retries)
	if e.Context == "" {
		return msg
	}
	return e.Context + ": " + msg
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized wraps err with an explicit category.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: category, Context: context}
}

// Transient marks err as worth retrying.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent marks err as not worth retrying.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// rule recognizes a kind of failure. ok is false when the rule has no
// opinion about err.
type rule func(err error) (c Category, ok bool)

// rules are consulted in order and the first opinion wins, so an explicit
// category beats anything inferred from the wrapped error.
var rules = []rule{
	func(err error) (Category, bool) {
		var ce *CategorizedError
		if errors.As(err, &ce) {
			return ce.Category, true
		}
		return 0, false
	},
	func(err error) (Category, bool) {
		var he *HTTPError
		if errors.As(err, &he) {
			return categoryOf(he.Transient()), true
		}
		return 0, false
	},
	func(err error) (Category, bool) {
		var te *TimeoutError
		return CategoryTransient, errors.As(err, &te)
	},
	// The caller gave up; another attempt cannot help.
	func(err error) (Category, bool) {
		return CategoryPermanent, errors.Is(err, context.Canceled)
	},
	func(err error) (Category, bool) {
		return CategoryTransient, errors.Is(err, context.DeadlineExceeded)
	},
	func(err error) (Category, bool) {
		var ne net.Error
		return CategoryTransient, errors.As(err, &ne) && ne.Timeout()
	},
	// Dial, read and write failures: refused, reset, unreachable.
	func(err error) (Category, bool) {
		var oe *net.OpError
		return CategoryTransient, errors.As(err, &oe)
	},
}

func categoryOf(transient bool) Category {
	if transient {
		return CategoryTransient
	}
	return CategoryPermanent
}

// Categorize decides whether err is worth retrying. nil and unrecognized
// errors are permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}
	for _, r := range rules {
		if c, ok := r(err); ok {
			return c
		}
	}
	return CategoryPermanent
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
