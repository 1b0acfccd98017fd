// Package version provides pure functions for semantic version resolution.
//
// This package is part of the functional core: nothing here performs I/O.
// It parses tag strings into typed versions, orders raw tag lists naturally,
// and computes the next version for a keyword request such as "patch",
// "minor-rc" or "beta".
//
// # Functions
//
//   - Parsing: Parse a tag into a Version (Parse, Version.String)
//   - Ordering: Natural, pre-release aware tag ordering (SortTags, CompareNatural)
//   - Requests: Parse a keyword request (ParseRequest)
//   - Resolution: Compute the version to deploy (Resolve)
//
// # Usage
//
// The imperative shell (internal/shell/vcs) lists tags, calls Resolve, and
// publishes the result only when Resolve reports a newly created tag.
//
//	res, err := version.Resolve(tags, "minor-beta")
//	if err != nil {
//	    return err
//	}
//	if res.Created {
//	    // create and push res.Tag
//	}
package version
