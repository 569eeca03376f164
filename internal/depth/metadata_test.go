package depth

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/xoq/internal/moqsession"
	"github.com/zsiec/xoq/media"
)

// pipeStream and fakeConn mirror internal/moqsession's own in-memory
// test transport, reimplemented here since moqsession's is unexported.
type pipeStream struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipeStream) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeStream) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipeStream) Close() error {
	_ = p.w.Close()
	return nil
}

func newStreamPair() (a, b *pipeStream) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	return &pipeStream{r: r1, w: w2}, &pipeStream{r: r2, w: w1}
}

type fakeConn struct {
	openBidi, acceptBidi chan *pipeStream
	openUni, acceptUni   chan *pipeStream
}

func newFakeConnPair() (a, b *fakeConn) {
	bidi1, bidi2 := make(chan *pipeStream, 16), make(chan *pipeStream, 16)
	uni1, uni2 := make(chan *pipeStream, 16), make(chan *pipeStream, 16)
	a = &fakeConn{openBidi: bidi1, acceptBidi: bidi2, openUni: uni1, acceptUni: uni2}
	b = &fakeConn{openBidi: bidi2, acceptBidi: bidi1, openUni: uni2, acceptUni: uni1}
	return a, b
}

func (c *fakeConn) OpenStream(ctx context.Context) (moqsession.Stream, error) {
	s1, s2 := newStreamPair()
	c.openBidi <- s2
	return s1, nil
}

func (c *fakeConn) AcceptStream(ctx context.Context) (moqsession.Stream, error) {
	select {
	case s := <-c.acceptBidi:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) OpenUniStream(ctx context.Context) (moqsession.SendStream, error) {
	s1, s2 := newStreamPair()
	c.openUni <- s2
	return s1, nil
}

func (c *fakeConn) AcceptUniStream(ctx context.Context) (moqsession.ReceiveStream, error) {
	select {
	case s := <-c.acceptUni:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestMetadataPublisherPublishOnceDeliversCalibrationJSON(t *testing.T) {
	t.Parallel()
	pubConn, subConn := newFakeConnPair()
	pubSess := moqsession.New(pubConn)
	subSess := moqsession.New(subConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := pubSess.PublishTrack("xoq/depth-sensor/0", "metadata")
	go pubSess.RunControlDispatch(ctx)
	go subSess.RunGroupDispatch(ctx)

	sub, err := subSess.Subscribe(ctx, "xoq/depth-sensor/0", "metadata", 0)
	require.NoError(t, err)

	var rs *moqsession.RequestedSubscriber
	select {
	case rs = <-pub.Requested():
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for subscribe request")
	}

	meta := media.DepthMetadata{Fx: 615.2, Fy: 615.2, Ppx: 320, Ppy: 240, Width: 640, Height: 480, DepthScale: 1.2}
	mp := &MetadataPublisher{}
	require.NoError(t, mp.PublishOnce(ctx, rs, meta))

	select {
	case group := <-sub.Groups:
		frame := <-group.Frames
		var got media.DepthMetadata
		require.NoError(t, json.Unmarshal(frame, &got))
		require.Equal(t, meta, got)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for metadata group")
	}
}
