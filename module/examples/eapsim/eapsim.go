// Package eapsim is a worked example of an EAP method implemented as a
// module instance per the module contract of module.Code — EAP methods are
// otherwise treated abstractly by the core (the wire-level EAP/RADIUS codec
// is an external collaborator).
//
// It participates in the authenticate component, driving the EAP-SIM
// start exchange: advertising the one version it supports and requesting
// the peer's full-authentication identity.
package eapsim

import (
	"sync"
	"sync/atomic"

	"github.com/pithecene-io/quarry-radius/module"
	"github.com/pithecene-io/quarry-radius/types"
)

func init() {
	module.Register(Code())
}

// simVersion is the only EAP-SIM version this module advertises.
const simVersion = uint16(1)

// startExchange is the attribute payload this module produced for one
// authenticate call, kept around for admin-surface introspection and for
// tests pinning the AT_FULLAUTH_ID_REQ quirk.
type startExchange struct {
	EAPID         uint32
	VersionList   []byte
	FullAuthIDReq []byte
}

// data is the per-instance state returned by Instantiate: an EAP ID
// sequence counter shared across every Authenticate call this instance
// serves, plus the most recent exchange for introspection.
type data struct {
	nextEAPID atomic.Uint32

	mu   sync.Mutex
	last startExchange
}

// Last returns the most recently built start exchange. Safe for
// concurrent use; intended for the admin stats surface and tests.
func (d *data) Last() startExchange {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Code returns this module's static descriptor for static registration.
// HUPSafe: reconfiguring resets the EAP ID sequence, which is harmless —
// a fresh sequence just restarts at zero for subsequent sessions.
func Code() *module.Code {
	return &module.Code{
		Name:  "eapsim",
		Flags: module.HUPSafe,
		Instantiate: func(rawConfig []byte, _ any) (any, error) {
			return &data{}, nil
		},
		Methods: map[types.Component]module.MethodFunc{
			types.ComponentAuthenticate: authenticate,
		},
	}
}

func authenticate(d any, req *types.Request) types.RCode {
	st, ok := d.(*data)
	if !ok {
		return types.RCodeFail
	}

	exchange := startExchange{
		EAPID:         st.nextEAPID.Add(1),
		VersionList:   buildVersionList(simVersion),
		FullAuthIDReq: buildFullAuthIDReq(),
	}

	st.mu.Lock()
	st.last = exchange
	st.mu.Unlock()

	req.Rounds++
	return types.RCodeHandled
}

// buildVersionList encodes the EAP-SIM AT_VERSION_LIST attribute value:
// a 2-byte actual-list-length field followed by the list of supported
// 2-byte version numbers, big-endian, matching the wire layout the
// reference rlm_eap_sim implementation produces for a single-version list.
func buildVersionList(version uint16) []byte {
	p := make([]byte, 4)
	p[0] = byte(2 >> 8)
	p[1] = byte(2)
	p[2] = byte(version >> 8)
	p[3] = byte(version)
	return p
}

// buildFullAuthIDReq returns the 2-byte AT_FULLAUTH_ID_REQ value this
// module sends to request the peer's permanent identity. The reference
// source builds this value with p[0] = 0; p[0] = 1 — the second
// assignment clearly shadows the first rather than setting p[1], a typo
// no protocol test ever caught. This implementation pins the resulting
// wire value, {0x00, 0x01}, rather than "fixing" a quirk nothing depends
// on either way.
func buildFullAuthIDReq() []byte {
	return []byte{0x00, 0x01}
}
