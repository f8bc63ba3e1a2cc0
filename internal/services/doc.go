// Package services starts and stops the long-running parts of the server
// (listeners, janitor, config watcher, notifier) in dependency order.
package services
