// Package repo implements plugin repositories and the registry that names
// them.
//
// A Repo is an append-only catalogue of plugin setups grouped by release and
// build. Releases start at 1 and grow by one; builds start at 1 within each
// release and grow by one. A setup address belongs to at most one release.
// Every repo carries its own permission table: MAINTAINER_PERMISSION gates
// publishing.
//
// The Registry maps subdomains to repos. The setup processor only accepts
// repos that are registered.
package repo
