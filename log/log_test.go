package log

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type lockedBuffer struct {
	mx  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.String()
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, false)
	t.Cleanup(func() {
		SetOutput(os.Stdout, true)
		_ = SetLevel("info")
	})
	require.NoError(t, SetLevel("info"))

	Debugf("hidden %d", 1)
	assert.Zero(t, buf.Len())

	Warnf("chip %d hot", 3)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "warn", rec["level"])
	assert.Equal(t, "chip 3 hot", rec["message"])
	assert.Contains(t, rec, "time")

	buf.Reset()
	require.NoError(t, SetLevel("DEBUG"))
	Debugf("shown")
	assert.Contains(t, buf.String(), `"message":"shown"`)
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { _ = SetLevel("info") })
	assert.Error(t, SetLevel("loud"))
	require.NoError(t, SetLevel(""))
	var buf bytes.Buffer
	SetOutput(&buf, false)
	t.Cleanup(func() { SetOutput(os.Stdout, true) })
	Infof("after reset")
	Errorf("bad")
	assert.Contains(t, buf.String(), "after reset")
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestReconfigureWhileLogging(t *testing.T) {
	t.Cleanup(func() {
		SetOutput(os.Stdout, true)
		_ = SetLevel("info")
	})
	var out lockedBuffer
	SetOutput(&out, false)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for n := 0; n < 200; n++ {
				Infof("writer %d line %d", i, n)
				Debugf("writer %d debug %d", i, n)
			}
			return nil
		})
	}
	g.Go(func() error {
		for n := 0; n < 100; n++ {
			if err := SetLevel([]string{"debug", "info"}[n%2]); err != nil {
				return err
			}
			if n%10 == 0 {
				SetOutput(io.Discard, false)
				SetOutput(&out, false)
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	require.NoError(t, SetLevel("warn"))
	Warnf("done")
	assert.Contains(t, out.String(), `"message":"done"`)
}
