package glog_test

import (
	"testing"
	"time"

	"github.com/gordian-engine/gstall/internal/glog"
	"github.com/stretchr/testify/require"
)

func TestHexAddrs(t *testing.T) {
	t.Parallel()

	v := glog.HexAddrs{0x10, 0xdeadbeef}.LogValue()
	require.Equal(t, "0x10 0xdeadbeef", v.String())

	require.Empty(t, glog.HexAddrs(nil).LogValue().String())
}

func TestMs(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(1500), glog.Ms(1500*time.Millisecond).LogValue().Int64())
}
