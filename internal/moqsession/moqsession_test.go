package moqsession

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/xoq/internal/moq"
)

// pipeStream turns a pair of io.Pipes into one bidirectional stream, so
// tests can exercise Session without any real QUIC connection.
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

// CancelWrite simulates a real quic.SendStream reset: it fails the
// write side with a *quic.StreamError carrying code, which the reader
// sees out of its blocking Read call. Lets tests exercise
// GroupWriter.Abandon end to end without a live QUIC connection.
func (p *pipeStream) CancelWrite(code quic.StreamErrorCode) {
	_ = p.w.CloseWithError(&quic.StreamError{ErrorCode: code, Remote: false})
}

func newStreamPair() (a, b *pipeStream) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	return &pipeStream{r: r1, w: w2}, &pipeStream{r: r2, w: w1}
}

// fakeConn implements Conn over in-memory channels of pipeStream pairs,
// one channel per stream kind, connecting exactly two Sessions.
type fakeConn struct {
	openBidi   chan *pipeStream
	acceptBidi chan *pipeStream
	openUni    chan *pipeStream
	acceptUni  chan *pipeStream
}

func newFakeConnPair() (a, b *fakeConn) {
	bidi1, bidi2 := make(chan *pipeStream, 16), make(chan *pipeStream, 16)
	uni1, uni2 := make(chan *pipeStream, 16), make(chan *pipeStream, 16)
	a = &fakeConn{openBidi: bidi1, acceptBidi: bidi2, openUni: uni1, acceptUni: uni2}
	b = &fakeConn{openBidi: bidi2, acceptBidi: bidi1, openUni: uni2, acceptUni: uni1}
	return a, b
}

func (c *fakeConn) OpenStream(ctx context.Context) (Stream, error) {
	s1, s2 := newStreamPair()
	c.openBidi <- s2
	return s1, nil
}

func (c *fakeConn) AcceptStream(ctx context.Context) (Stream, error) {
	select {
	case s := <-c.acceptBidi:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) OpenUniStream(ctx context.Context) (SendStream, error) {
	s1, s2 := newStreamPair()
	c.openUni <- s2
	return s1, nil
}

func (c *fakeConn) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	select {
	case s := <-c.acceptUni:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestHandshakeNegotiatesVersion(t *testing.T) {
	t.Parallel()
	clientConn, serverConn := newFakeConnPair()

	var serverSess *Session
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		sess, _, version, err := ServerHandshake(context.Background(), serverConn)
		require.NoError(t, err)
		require.NotZero(t, version)
		serverSess = sess
	}()

	clientSess, _, version, err := ClientHandshake(context.Background(), clientConn)
	require.NoError(t, err)
	require.NotZero(t, version)
	<-serverDone
	require.NotNil(t, clientSess)
	require.NotNil(t, serverSess)
}

func TestPublishSubscribeDeliversFrames(t *testing.T) {
	t.Parallel()
	pubConn, subConn := newFakeConnPair()
	pubSess := New(pubConn)
	subSess := New(subConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := pubSess.PublishTrack("xoq/camera-av1/0", "video")
	go pubSess.RunControlDispatch(ctx)
	go subSess.RunGroupDispatch(ctx)

	sub, err := subSess.Subscribe(ctx, "xoq/camera-av1/0", "video", 0)
	require.NoError(t, err)

	rs := <-pub.Requested()
	gw, err := rs.OpenGroup(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, gw.WriteFrame([]byte("keyframe")))
	require.NoError(t, gw.WriteFrame([]byte("delta")))
	require.NoError(t, gw.Close())

	select {
	case group := <-sub.Groups:
		f1 := <-group.Frames
		require.Equal(t, "keyframe", string(f1))
		f2 := <-group.Frames
		require.Equal(t, "delta", string(f2))
		_, ok := <-group.Frames
		require.False(t, ok)
		require.NoError(t, group.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for group")
	}
}

func TestAbandonDeliversStreamResetError(t *testing.T) {
	t.Parallel()
	pubConn, subConn := newFakeConnPair()
	pubSess := New(pubConn)
	subSess := New(subConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := pubSess.PublishTrack("xoq/camera-av1/0", "video")
	go pubSess.RunControlDispatch(ctx)
	go subSess.RunGroupDispatch(ctx)

	sub, err := subSess.Subscribe(ctx, "xoq/camera-av1/0", "video", 0)
	require.NoError(t, err)

	rs := <-pub.Requested()
	gw, err := rs.OpenGroup(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, gw.WriteFrame([]byte("keyframe")))
	require.NoError(t, gw.Abandon(moq.ResetCodeGroupAbandoned))

	select {
	case group := <-sub.Groups:
		f1 := <-group.Frames
		require.Equal(t, "keyframe", string(f1))
		_, ok := <-group.Frames
		require.False(t, ok)
		var reset *moq.StreamResetError
		require.ErrorAs(t, group.Err, &reset)
		require.Equal(t, moq.ResetCodeGroupAbandoned, reset.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for group")
	}
	require.Equal(t, TrackOpen, sub.State())
}

func TestAbandonWithTrackEndedCodeEndsTrack(t *testing.T) {
	t.Parallel()
	pubConn, subConn := newFakeConnPair()
	pubSess := New(pubConn)
	subSess := New(subConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := pubSess.PublishTrack("xoq/camera-av1/0", "video")
	go pubSess.RunControlDispatch(ctx)
	go subSess.RunGroupDispatch(ctx)

	sub, err := subSess.Subscribe(ctx, "xoq/camera-av1/0", "video", 0)
	require.NoError(t, err)

	rs := <-pub.Requested()
	gw, err := rs.OpenGroup(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, gw.Abandon(moq.ResetCodeTrackEnded))

	select {
	case group := <-sub.Groups:
		_, ok := <-group.Frames
		require.False(t, ok)
		var reset *moq.StreamResetError
		require.ErrorAs(t, group.Err, &reset)
		require.Equal(t, moq.ResetCodeTrackEnded, reset.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for group")
	}
	require.Equal(t, TrackEnded, sub.State())
}

func TestAnnounceResponderFiltersByPrefix(t *testing.T) {
	t.Parallel()
	pubConn, subConn := newFakeConnPair()
	pubSess := New(pubConn)
	subSess := New(subConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSess.PublishTrack("xoq/camera-av1/0", "video")
	pubSess.SetAnnounceResponder(NewAnnounceResponder(func() []string {
		return []string{"xoq/camera-av1/0", "xoq/can/0"}
	}))
	go pubSess.RunControlDispatch(ctx)

	paths, _, stop, err := subSess.Discover(ctx, "xoq/camera")
	require.NoError(t, err)
	defer stop()
	require.Equal(t, []string{"xoq/camera-av1/0"}, paths)
}

func TestSessionCloseEndsSubscriptions(t *testing.T) {
	t.Parallel()
	pubConn, subConn := newFakeConnPair()
	pubSess := New(pubConn)
	subSess := New(subConn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := pubSess.PublishTrack("xoq/depth/0", "metadata")
	go pubSess.RunControlDispatch(ctx)
	go subSess.RunGroupDispatch(ctx)

	sub, err := subSess.Subscribe(ctx, "xoq/depth/0", "metadata", 0)
	require.NoError(t, err)
	<-pub.Requested()

	subSess.Close(io.ErrClosedPipe)

	select {
	case _, ok := <-sub.Groups:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session close to propagate")
	}
	require.Equal(t, TrackEnded, sub.State())
}
