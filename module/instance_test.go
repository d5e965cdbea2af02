package module

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/quarry-radius/types"
)

// echoCode builds a Code whose Instantiate echoes back rawConfig (or, for a
// sibling reference, the referenced instance's rawConfig) and whose
// authorize method writes the opaque data it was given into sink, so a test
// can observe what data a given Invoke call actually ran against.
func echoCode(name string, flags Flags, sink *any) *Code {
	return &Code{
		Name:  name,
		Magic: testMagic(),
		Flags: flags,
		Instantiate: func(rawConfig []byte, bootstrapData any) (any, error) {
			return string(rawConfig), nil
		},
		Methods: map[types.Component]MethodFunc{
			types.ComponentAuthorize: func(data any, req *types.Request) types.RCode {
				*sink = data
				return types.RCodeOK
			},
		},
	}
}

func newTestManager(t *testing.T) *Manager {
	r := NewRegistry(testMagic(), nil, nil)
	return NewManager(r, nil)
}

func TestManager_Declare_RejectsReservedName(t *testing.T) {
	var sink any
	Register(echoCode("instance-test-reserved", 0, &sink))
	m := newTestManager(t)
	err := m.Declare("group", "instance-test-reserved", "", nil, "")
	assert.ErrorIs(t, err, ErrReservedName)
}

func TestManager_Declare_RejectsDuplicate(t *testing.T) {
	var sink any
	Register(echoCode("instance-test-dup", 0, &sink))
	m := newTestManager(t)
	require.NoError(t, m.Declare("dup1", "instance-test-dup", "", nil, ""))
	err := m.Declare("dup1", "instance-test-dup", "", nil, "")
	assert.ErrorIs(t, err, ErrDuplicateInstance)
}

func TestManager_Bootstrap_InstantiatesDeclaredInstance(t *testing.T) {
	var sink any
	Register(echoCode("instance-test-basic", 0, &sink))
	m := newTestManager(t)
	require.NoError(t, m.Declare("basic", "instance-test-basic", "", []byte("cfg"), ""))
	require.NoError(t, m.Bootstrap())

	in, ok := m.Instance("basic")
	require.True(t, ok)
	rc, err := in.Invoke(types.ComponentAuthorize, &types.Request{})
	require.NoError(t, err)
	assert.Equal(t, types.RCodeOK, rc)
	assert.Equal(t, "cfg", sink)
}

func TestManager_Instance_UnreadyInstanceNotFound(t *testing.T) {
	var sink any
	Register(echoCode("instance-test-unready", 0, &sink))
	m := newTestManager(t)
	require.NoError(t, m.Declare("unready", "instance-test-unready", "", nil, ""))

	_, ok := m.Instance("unready")
	assert.False(t, ok)
}

func TestInstance_Invoke_BeforeBootstrapReturnsError(t *testing.T) {
	var sink any
	in := &Instance{Name: "fresh", Code: echoCode("instance-test-fresh", 0, &sink)}
	_, err := in.Invoke(types.ComponentAuthorize, &types.Request{})
	assert.ErrorIs(t, err, ErrNotInstantiated)
}

func TestInstance_Invoke_UnimplementedComponentIsNoop(t *testing.T) {
	var sink any
	Register(echoCode("instance-test-noop", 0, &sink))
	m := newTestManager(t)
	require.NoError(t, m.Declare("noopinst", "instance-test-noop", "", nil, ""))
	require.NoError(t, m.Bootstrap())

	in, ok := m.Instance("noopinst")
	require.True(t, ok)
	rc, err := in.Invoke(types.ComponentAccounting, &types.Request{})
	require.NoError(t, err)
	assert.Equal(t, types.RCodeNoop, rc)
}

func TestInstance_Invoke_SetsAndClearsRequestModule(t *testing.T) {
	var seenModule string
	code := &Code{
		Name:        "instance-test-module-field",
		Magic:       testMagic(),
		Instantiate: func([]byte, any) (any, error) { return nil, nil },
		Methods: map[types.Component]MethodFunc{
			types.ComponentAuthorize: func(any, req *types.Request) types.RCode {
				seenModule = req.Module
				return types.RCodeOK
			},
		},
	}
	Register(code)
	m := newTestManager(t)
	require.NoError(t, m.Declare("tagged", "instance-test-module-field", "", nil, ""))
	require.NoError(t, m.Bootstrap())

	in, _ := m.Instance("tagged")
	req := &types.Request{}
	_, err := in.Invoke(types.ComponentAuthorize, req)
	require.NoError(t, err)
	assert.Equal(t, "tagged", seenModule)
	assert.Equal(t, "", req.Module)
}

func TestInstance_Invoke_ThreadUnsafeSerializesCalls(t *testing.T) {
	var inFlight int32
	var maxSeen int32
	release := make(chan struct{})

	code := &Code{
		Name:        "instance-test-serial",
		Magic:       testMagic(),
		Flags:       ThreadUnsafe,
		Instantiate: func([]byte, any) (any, error) { return nil, nil },
		Methods: map[types.Component]MethodFunc{
			types.ComponentAuthorize: func(any, *types.Request) types.RCode {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxSeen)
					if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&inFlight, -1)
				return types.RCodeOK
			},
		},
	}
	Register(code)
	m := newTestManager(t)
	require.NoError(t, m.Declare("serial", "instance-test-serial", "", nil, ""))
	require.NoError(t, m.Bootstrap())
	in, _ := m.Instance("serial")

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.Invoke(types.ComponentAuthorize, &types.Request{})
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
}

func TestManager_Bootstrap_RunsCodeBootstrapOncePerCode(t *testing.T) {
	var bootstrapCalls int32
	var sink1, sink2 any
	code := &Code{
		Name:  "instance-test-shared",
		Magic: testMagic(),
		Bootstrap: func([]byte) (any, error) {
			atomic.AddInt32(&bootstrapCalls, 1)
			return "shared", nil
		},
		Instantiate: func(rawConfig []byte, bootstrapData any) (any, error) {
			return bootstrapData, nil
		},
		Methods: map[types.Component]MethodFunc{
			types.ComponentAuthorize: nil,
		},
	}
	code.Methods[types.ComponentAuthorize] = func(data any, req *types.Request) types.RCode {
		if req.Number == 1 {
			sink1 = data
		} else {
			sink2 = data
		}
		return types.RCodeOK
	}
	Register(code)
	m := newTestManager(t)
	require.NoError(t, m.Declare("shared1", "instance-test-shared", "", nil, ""))
	require.NoError(t, m.Declare("shared2", "instance-test-shared", "", nil, ""))
	require.NoError(t, m.Bootstrap())

	assert.Equal(t, int32(1), atomic.LoadInt32(&bootstrapCalls))

	in1, _ := m.Instance("shared1")
	in2, _ := m.Instance("shared2")
	in1.Invoke(types.ComponentAuthorize, &types.Request{Number: 1})
	in2.Invoke(types.ComponentAuthorize, &types.Request{Number: 2})
	assert.Equal(t, "shared", sink1)
	assert.Equal(t, "shared", sink2)
}

func TestManager_Bootstrap_SiblingRefSharesRawConfig(t *testing.T) {
	var sink any
	Register(echoCode("instance-test-sibling", 0, &sink))
	m := newTestManager(t)
	require.NoError(t, m.Declare("primary", "instance-test-sibling", "", []byte("shared-cfg"), ""))
	require.NoError(t, m.Declare("secondary", "instance-test-sibling", "", nil, "primary"))
	require.NoError(t, m.Bootstrap())

	secondary, ok := m.Instance("secondary")
	require.True(t, ok)
	_, err := secondary.Invoke(types.ComponentAuthorize, &types.Request{})
	require.NoError(t, err)
	assert.Equal(t, "shared-cfg", sink)
}

func TestManager_Bootstrap_SiblingCycleIsError(t *testing.T) {
	var sink any
	Register(echoCode("instance-test-cycle", 0, &sink))
	m := newTestManager(t)
	require.NoError(t, m.Declare("a", "instance-test-cycle", "", nil, "b"))
	require.NoError(t, m.Declare("b", "instance-test-cycle", "", nil, "a"))

	err := m.Bootstrap()
	assert.ErrorIs(t, err, ErrCycle)
}

func TestManager_Bootstrap_SiblingRefToUnknownNameIsError(t *testing.T) {
	var sink any
	Register(echoCode("instance-test-danglingref", 0, &sink))
	m := newTestManager(t)
	require.NoError(t, m.Declare("dangling", "instance-test-danglingref", "", nil, "ghost"))

	err := m.Bootstrap()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_Bootstrap_InstantiateFailureIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	code := &Code{
		Name:        "instance-test-failing",
		Magic:       testMagic(),
		Instantiate: func([]byte, any) (any, error) { return nil, boom },
	}
	Register(code)
	m := newTestManager(t)
	require.NoError(t, m.Declare("failing", "instance-test-failing", "", nil, ""))

	err := m.Bootstrap()
	assert.ErrorIs(t, err, ErrInstantiateFailed)
	assert.ErrorIs(t, err, boom)
}

func TestManager_Names_ListsDeclaredInstances(t *testing.T) {
	var sink any
	Register(echoCode("instance-test-names", 0, &sink))
	m := newTestManager(t)
	require.NoError(t, m.Declare("n1", "instance-test-names", "", nil, ""))
	require.NoError(t, m.Declare("n2", "instance-test-names", "", nil, ""))

	names := m.Names()
	assert.ElementsMatch(t, []string{"n1", "n2"}, names)
}

func TestManager_Detach_RunsDetachHookAndResetsState(t *testing.T) {
	var detached int32
	code := &Code{
		Name:        "instance-test-detach",
		Magic:       testMagic(),
		Instantiate: func([]byte, any) (any, error) { return nil, nil },
		Detach: func(any) error {
			atomic.AddInt32(&detached, 1)
			return nil
		},
	}
	Register(code)
	m := newTestManager(t)
	require.NoError(t, m.Declare("detachable", "instance-test-detach", "", nil, ""))
	require.NoError(t, m.Bootstrap())

	require.NoError(t, m.Detach())
	assert.Equal(t, int32(1), atomic.LoadInt32(&detached))

	_, ok := m.Instance("detachable")
	assert.False(t, ok)
}
