package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dermesser/zbroker/config"
	"github.com/dermesser/zbroker/dispatcher"
	"github.com/dermesser/zbroker/log"
)

func TestRegister(t *testing.T) {
	d := dispatcher.New(config.Default(), log.Discard())

	require.NoError(t, Register(d))
	assert.ElementsMatch(t, []string{GETDATA_1, GETDATA_2}, d.Commands())
	assert.Error(t, Register(d), "second registration must fail")
}

func TestGetData(t *testing.T) {
	d := dispatcher.New(config.Default(), log.Discard())
	require.NoError(t, Register(d))

	reply := d.Dispatch([]byte(`{"command": "getdata_1", "user": "u", "password": "12345"}`), "T1")
	assert.Equal(t, "ok", reply["status"])
	assert.Equal(t, "u", reply["user"])
	assert.Len(t, reply["data"], 3)

	reply = d.Dispatch([]byte(`{"command": "getdata_2", "user": "u"}`), "T2")
	assert.Equal(t, "ok", reply["status"])
	assert.Equal(t, float64(4), reply["data"].(map[string]interface{})["workers"])
}

func TestMissingUser(t *testing.T) {
	cfg := config.Default()

	assert.True(t, GetData1(dispatcher.Request{"command": GETDATA_1}, cfg).IsError())
	assert.True(t, GetData2(dispatcher.Request{"command": GETDATA_2, "user": ""}, cfg).IsError())
}
