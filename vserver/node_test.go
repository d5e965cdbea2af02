package vserver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pithecene-io/quarry-radius/types"
)

type fakeInstance struct {
	rc  types.RCode
	err error
}

func (f *fakeInstance) Invoke(component types.Component, req *types.Request) (types.RCode, error) {
	req.Module = "fake"
	return f.rc, f.err
}

func rcNode(rc types.RCode) Node {
	return &Call{Instance: &fakeInstance{rc: rc}}
}

func TestCall_Run_PropagatesRCode(t *testing.T) {
	req := &types.Request{}
	rc := (&Call{Instance: &fakeInstance{rc: types.RCodeOK}}).Run(types.ComponentAuthorize, req)
	assert.Equal(t, types.RCodeOK, rc)
	assert.Equal(t, "fake", req.Module)
}

func TestCall_Run_ErrorBecomesFail(t *testing.T) {
	req := &types.Request{}
	rc := (&Call{Instance: &fakeInstance{rc: types.RCodeOK, err: errors.New("boom")}}).Run(types.ComponentAuthorize, req)
	assert.Equal(t, types.RCodeFail, rc)
}

func TestGroup_Run_FailStopsAtFirstFailure(t *testing.T) {
	var ran []types.RCode
	recording := func(rc types.RCode) Node {
		return recordNode{rc: rc, log: &ran}
	}
	g := &Group{Children: []Node{
		recording(types.RCodeOK),
		recording(types.RCodeFail),
		recording(types.RCodeOK),
	}}
	rc := g.Run(types.ComponentAuthorize, &types.Request{})
	assert.Equal(t, types.RCodeFail, rc)
	assert.Equal(t, []types.RCode{types.RCodeOK, types.RCodeFail}, ran)
}

func TestGroup_Run_FailStopsOnReject(t *testing.T) {
	g := &Group{Children: []Node{rcNode(types.RCodeReject), rcNode(types.RCodeOK)}}
	rc := g.Run(types.ComponentAuthorize, &types.Request{})
	assert.Equal(t, types.RCodeReject, rc)
}

func TestGroup_Run_EmptyIsNoop(t *testing.T) {
	g := &Group{}
	assert.Equal(t, types.RCodeNoop, g.Run(types.ComponentAuthorize, &types.Request{}))
}

func TestGroup_Run_LastChildRCodeWinsWhenNoFailure(t *testing.T) {
	g := &Group{Children: []Node{rcNode(types.RCodeOK), rcNode(types.RCodeUpdated)}}
	rc := g.Run(types.ComponentAuthorize, &types.Request{})
	assert.Equal(t, types.RCodeUpdated, rc)
}

func TestRedundant_Run_TriesNextOnFailure(t *testing.T) {
	r := &Redundant{Children: []Node{rcNode(types.RCodeFail), rcNode(types.RCodeOK)}}
	rc := r.Run(types.ComponentAuthorize, &types.Request{})
	assert.Equal(t, types.RCodeOK, rc)
}

func TestRedundant_Run_AllFailReturnsFail(t *testing.T) {
	r := &Redundant{Children: []Node{rcNode(types.RCodeFail), rcNode(types.RCodeFail)}}
	rc := r.Run(types.ComponentAuthorize, &types.Request{})
	assert.Equal(t, types.RCodeFail, rc)
}

func TestLoadBalance_Run_RoundRobinsAcrossCalls(t *testing.T) {
	var hits []int
	mk := func(i int) Node {
		return recordIndexNode{i: i, log: &hits}
	}
	lb := &LoadBalance{Children: []Node{mk(0), mk(1), mk(2)}}
	for i := 0; i < 6; i++ {
		lb.Run(types.ComponentAuthorize, &types.Request{})
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, hits)
}

func TestLoadBalance_Run_EmptyIsNoop(t *testing.T) {
	lb := &LoadBalance{}
	assert.Equal(t, types.RCodeNoop, lb.Run(types.ComponentAuthorize, &types.Request{}))
}

func TestRedundantLoadBalance_Run_FailsOverThroughRing(t *testing.T) {
	rlb := NewRedundantLoadBalance([]Node{
		rcNode(types.RCodeFail),
		rcNode(types.RCodeFail),
		rcNode(types.RCodeOK),
	}, nil)
	// Exercise many times; regardless of start point, all-but-one
	// fail so it must eventually land on the surviving child.
	for i := 0; i < 20; i++ {
		rc := rlb.Run(types.ComponentAuthorize, &types.Request{})
		assert.Equal(t, types.RCodeOK, rc)
	}
}

// recordNode is a test-only Node that appends its configured rcode to a
// shared log each time it runs, for asserting Group's fail-stop ordering.
type recordNode struct {
	rc  types.RCode
	log *[]types.RCode
}

func (r recordNode) Run(types.Component, *types.Request) types.RCode {
	*r.log = append(*r.log, r.rc)
	return r.rc
}

type recordIndexNode struct {
	i   int
	log *[]int
}

func (r recordIndexNode) Run(types.Component, *types.Request) types.RCode {
	*r.log = append(*r.log, r.i)
	return types.RCodeOK
}
