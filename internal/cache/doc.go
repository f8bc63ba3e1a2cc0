// Package cache owns the on-disk artifact cache shared by all requests.
//
// Layout below the root:
//
//	<root>/<branch>/js/masters/*    module master descriptors
//	<root>/<branch>/js/...          mirrored module sources
//	<root>/<branch>/output/...      built or statically fetched artifacts
//	<root>/<branch>/.staging/js     partially mirrored source tree
//	<root>/download/<id>/           ephemeral custom builds
//
// Presence is the only state: a file that exists is complete, because every
// file and tree the cache exposes is published with a rename. Entries are never
// invalidated on the request path; branches are immutable, and Purge is the
// administrative way to drop them. A purge waits for fills and builds
// holding the branch, so it never interleaves with a publish.
package cache
