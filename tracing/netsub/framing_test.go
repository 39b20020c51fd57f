package netsub

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramingRawBlockRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	data := []byte("hello tracing world")
	go func() {
		_ = WriteRawBlock(client, data)
	}()

	tag, payload, err := ReadMessage(server)
	require.NoError(t, err)
	assert.Equal(t, frameTagRawBlock, tag)
	assert.Equal(t, data, payload)
}

func TestFramingClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_ = WriteClose(client)
	}()

	tag, payload, err := ReadMessage(server)
	require.NoError(t, err)
	assert.Equal(t, frameTagClose, tag)
	assert.Empty(t, payload)
}

func TestFramingChunksOversizeBlock(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	data := make([]byte, maxBlockSize+100)
	for i := range data {
		data[i] = byte(i)
	}

	go func() {
		_ = WriteRawBlock(client, data)
	}()

	tag1, p1, err := ReadMessage(server)
	require.NoError(t, err)
	assert.Equal(t, frameTagRawBlock, tag1)
	assert.Len(t, p1, maxBlockSize)

	tag2, p2, err := ReadMessage(server)
	require.NoError(t, err)
	assert.Equal(t, frameTagRawBlock, tag2)
	assert.Len(t, p2, 100)
}
