/*
Package observability exports engine activity as Prometheus metrics.

Metrics.Hooks adapts the collectors to domain.LifecycleHooks so they can be merged
with any other hooks passed to the bot.
*/
package observability
