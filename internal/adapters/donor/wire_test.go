package donor

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradecopier/internal/domain"
)

const sampleFrame = `{
  "positions": [
    {"ticket": 111, "symbol": "EURUSD", "type": 0, "volume": 0.10,
     "price_open": 1.10000, "price_current": 1.10015, "profit": 1.5,
     "time": 1750000000, "magic": 42, "comment": "swing"},
    {"ticket": 112, "symbol": "GBPUSD", "type": 1, "volume": 0.20,
     "price_open": 1.25000, "price_current": 1.24980, "profit": 4.0,
     "time": 1750000100}
  ],
  "orders": [
    {"ticket": 211, "symbol": "EURUSD", "type": 2, "volume": 0.10,
     "price_open": 1.09950, "time_setup": 1750000200}
  ],
  "account_info": {"login": 9001, "balance": 15000.5}
}`

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte(sampleFrame)))

	payload, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleFrame, string(payload))
}

func TestReadFrame_RejectsOversizedHeader(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, err := readFrame(buf)
	assert.Error(t, err)
}

func TestReadFrame_ShortPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 10})
	buf.WriteString("short")
	_, err := readFrame(&buf)
	assert.Error(t, err)
}

func TestDecodeFrame(t *testing.T) {
	positions, orders, account, err := decodeFrame([]byte(sampleFrame), "alpha")
	require.NoError(t, err)

	require.Len(t, positions, 2)
	p := positions[0]
	assert.Equal(t, int64(111), p.Ticket)
	assert.Equal(t, domain.Buy, p.Direction)
	assert.Equal(t, "alpha", p.SourceID)
	require.NotNil(t, p.Magic)
	assert.Equal(t, int64(42), *p.Magic)
	assert.Equal(t, time.Unix(1750000000, 0), p.OpenedAt)

	assert.Equal(t, domain.Sell, positions[1].Direction)
	assert.Nil(t, positions[1].Magic)

	require.Len(t, orders, 1)
	assert.Equal(t, domain.BuyLimit, orders[0].Kind)
	assert.InDelta(t, 1.09950, orders[0].Price, 1e-9)

	assert.Equal(t, int64(9001), account.Login)
	assert.InDelta(t, 15000.5, account.Balance, 1e-9)
}

func TestDecodeFrame_DropsUnknownTypeCodes(t *testing.T) {
	frame := `{"positions": [{"ticket": 1, "symbol": "EURUSD", "type": 9, "volume": 0.1,
		"price_open": 1.1, "price_current": 1.1, "profit": 0, "time": 1750000000}],
		"orders": [], "account_info": {"login": 1, "balance": 100}}`
	positions, orders, _, err := decodeFrame([]byte(frame), "alpha")
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Empty(t, orders)
}

func TestDecodeFrame_BadJSON(t *testing.T) {
	_, _, _, err := decodeFrame([]byte("{nope"), "alpha")
	assert.Error(t, err)
}

// agentConn plays the terminal agent end of a socket source.
func TestSocketSource_ConsumesStream(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	served := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = writeFrame(conn, []byte(sampleFrame))
		close(served)
		// keep the connection open until the source disconnects
	}()

	src := NewSocketMT5("alpha", 9001, "127.0.0.1", ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, src.Connect(context.Background()))
	defer src.Disconnect()

	<-served
	require.Eventually(t, func() bool {
		positions, _ := src.Positions()
		return len(positions) == 2
	}, 2*time.Second, 10*time.Millisecond)

	orders, err := src.Orders()
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	info, err := src.AccountInfo()
	require.NoError(t, err)
	assert.Equal(t, int64(9001), info.Login)
	assert.InDelta(t, 15000.5, info.Balance, 1e-9)
	assert.True(t, src.Connected())
}

func TestSocketSource_DisconnectStopsListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, _ := ln.Accept()
		if conn != nil {
			defer conn.Close()
			buf := make([]byte, 1)
			_, _ = conn.Read(buf) // block until the source hangs up
		}
	}()

	src := NewSocketMT4("bravo", 9002, "127.0.0.1", ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, src.Connect(context.Background()))
	require.NoError(t, src.Disconnect())
	assert.False(t, src.Connected())
}
