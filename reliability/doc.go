// Package reliability implements the fault classification and retry engine
// behind outbound sends.
//
// The building blocks:
//   - Category predicates (IsOverload, IsNetwork, IsBroker): map raw
//     transport errors to fault categories
//   - Backoff strategies (ExponentialBackoff, FixedBackoff): compute the
//     wait before the next attempt
//   - Policy and CategoryPolicy: pair a fault predicate with an attempt
//     bound and a backoff strategy
//   - Chain: ordered first-match-wins dispatch over policies; a fault no
//     policy matches is unclassified and is never retried
//   - Executor: drives an operation through a chain until success,
//     exhaustion of the matched category, or an unclassified fault
//   - CircuitBreaker: sheds work while a dependency keeps failing
//
// Dispatch is left-biased: once a policy matches a fault, its attempt bound
// and backoff govern that fault completely, regardless of what later
// policies in the chain would have decided. DefaultChain orders the
// built-in policies overload, network, broker, so an ambiguous timeout is
// handled by the bounded overload policy rather than retried forever.
//
// Example usage:
//
//	exec := reliability.NewExecutor(reliability.DefaultChain())
//	err := exec.Execute(ctx, func(ctx context.Context, attempt int) error {
//		return sender.Send(ctx, msg)
//	})
//
// Only terminal outcomes escape Execute: success, an unclassified fault, or
// the original fault once its category's attempts are spent.
package reliability
