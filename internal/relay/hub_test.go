package relay

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/xoq/internal/moqsession"
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

// TestHubForwardsOriginGroupToViewer wires an origin link directly into
// the Hub (bypassing a real Handle call for the origin side, since an
// origin never returns from RunGroupDispatch while serving) and
// verifies a viewer attached via Handle receives the origin's frames.
// bridgeSess plays the publishing bridge; relaySess is the Hub's own
// session object for that link, which is the one Subscribe and
// RunGroupDispatch must run on (the session that calls Subscribe is
// the session whose internal state dispatchGroup delivers into).
func TestHubForwardsOriginGroupToViewer(t *testing.T) {
	t.Parallel()
	relayConn, bridgeConn := newFakeConnPair()
	viewerConn, viewerPeerConn := newFakeConnPair()

	relaySess := moqsession.New(relayConn)
	bridgeSess := moqsession.New(bridgeConn)
	viewerSess := moqsession.New(viewerConn)
	viewerPeerSess := moqsession.New(viewerPeerConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	h.mu.Lock()
	h.origins["xoq/camera-h264/0"] = relaySess
	h.mu.Unlock()

	pub := bridgeSess.PublishTrack("xoq/camera-h264/0", "video")
	go bridgeSess.RunControlDispatch(ctx)
	go relaySess.RunGroupDispatch(ctx)

	go h.Handle(ctx, "xoq/camera-h264/0", []string{"video"}, viewerPeerSess)
	go viewerSess.RunGroupDispatch(ctx)

	sub, err := viewerSess.Subscribe(ctx, "xoq/camera-h264/0", "video", 0)
	require.NoError(t, err)

	var rs *moqsession.RequestedSubscriber
	select {
	case rs = <-pub.Requested():
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for origin subscribe request")
	}
	gw, err := rs.OpenGroup(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, gw.WriteFrame([]byte("hello")))
	require.NoError(t, gw.Close())

	select {
	case group := <-sub.Groups:
		frame := <-group.Frames
		require.Equal(t, "hello", string(frame))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for relayed group")
	}
}
