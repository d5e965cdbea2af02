package module

import "fmt"

// Magic is the ABI fingerprint every loaded module descriptor must carry.
// All three sub-fields must match the host build for a load to succeed;
// a mismatch is reported as a distinct, non-retriable LoadError kind so
// operators can tell "wrong prefix" from "wrong commit" at a glance.
type Magic struct {
	Prefix  string
	Version string
	Commit  string
}

// Check compares a loaded descriptor's magic against the host's, returning
// the first mismatching sub-kind it finds (prefix is checked before version,
// version before commit).
func (m Magic) Check(host Magic) error {
	if m.Prefix != host.Prefix {
		return fmt.Errorf("%w: module prefix %q, host prefix %q", ErrMagicPrefix, m.Prefix, host.Prefix)
	}
	if m.Version != host.Version {
		return fmt.Errorf("%w: module version %q, host version %q", ErrMagicVersion, m.Version, host.Version)
	}
	if m.Commit != host.Commit {
		return fmt.Errorf("%w: module commit %q, host commit %q", ErrMagicCommit, m.Commit, host.Commit)
	}
	return nil
}
