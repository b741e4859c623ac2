// Package engine gives a render loop non-blocking access to the repository.
//
// It owns everything asynchronous:
//   - one job slot per operation kind, so a newer request supersedes an older one
//   - the dispatcher lanes the slots run on
//   - the result cache and its invalidation
//   - the notification channel the consumer drains once per tick
//   - the remote operation controller for fetch, push and pull
//
// Nothing in the engine refreshes on its own. Invalidation marks cached results
// untrusted and tells the consumer; the consumer decides what to spawn again.
package engine
