package syncengine

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// checkProtocolVersion compares the remote's reported protocol version
// against the context's configured minimum before any network I/O for a
// push or pull, and refuses to proceed on a skew.
func (c *SyncContext) checkProtocolVersion() error {
	versioned, ok := c.remote.(VersionedRemoteClient)
	if !ok {
		return nil
	}
	reported := normalizeSemver(versioned.ProtocolVersion())
	minimum := normalizeSemver(c.minProtocolVer)
	if reported == "" || minimum == "" {
		return nil
	}
	if semver.Compare(reported, minimum) < 0 {
		return &TransportError{
			Kind: RemoteErrorTransport,
			Err:  fmt.Errorf("%w: remote speaks %s, require >= %s", ErrProtocolSkew, versioned.ProtocolVersion(), c.minProtocolVer),
		}
	}
	return nil
}

// normalizeSemver adds the "v" prefix golang.org/x/mod/semver requires,
// if the caller omitted it, and returns "" for inputs semver can't parse
// at all (treated as "no opinion" rather than a hard failure, since a
// RemoteClient's version string format is its own business).
func normalizeSemver(v string) string {
	if v == "" {
		return ""
	}
	if v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
