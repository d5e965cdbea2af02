package homeproxy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/quarry-radius/types"
)

const roundRobinConfig = `
strategy: round_robin
endpoints:
  - protocol: udp
    host: 10.0.0.1
    port: 1812
    secret: s3cret
  - protocol: udp
    host: 10.0.0.2
    port: 1812
    secret: s3cret
`

func TestPreProxySelectsRoundRobin(t *testing.T) {
	code := Code()
	inst, err := code.Instantiate([]byte(roundRobinConfig), nil)
	require.NoError(t, err)

	fn, ok := code.Method(types.ComponentPreProxy)
	require.True(t, ok)

	rc := fn(inst, &types.Request{Number: 1})
	require.Equal(t, types.RCodeUpdated, rc)

	st := inst.(*data)
	first := st.Last()
	require.Equal(t, "10.0.0.1", first.Host)

	rc = fn(inst, &types.Request{Number: 2})
	require.Equal(t, types.RCodeUpdated, rc)
	second := st.Last()
	require.Equal(t, "10.0.0.2", second.Host)
}

func TestLastNeverLeaksSecret(t *testing.T) {
	code := Code()
	inst, err := code.Instantiate([]byte(roundRobinConfig), nil)
	require.NoError(t, err)

	fn, _ := code.Method(types.ComponentPreProxy)
	fn(inst, &types.Request{Number: 1})

	st := inst.(*data)
	require.Equal(t, 1812, st.Last().Port)
}

func TestInstantiateRejectsInvalidPool(t *testing.T) {
	code := Code()
	_, err := code.Instantiate([]byte("strategy: round_robin\nendpoints: []\n"), nil)
	require.Error(t, err)
}

func TestInstantiateRejectsMalformedYAML(t *testing.T) {
	code := Code()
	_, err := code.Instantiate([]byte("not: [valid yaml"), nil)
	require.Error(t, err)
}
