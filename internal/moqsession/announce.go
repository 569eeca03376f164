package moqsession

import (
	"context"
	"fmt"

	"github.com/zsiec/xoq/internal/moq"
)

// Discover opens a control stream, requests the broadcast paths under
// prefix, and returns the initial list plus a channel of incremental
// Announcement updates. Per spec.md §4.2, closing the returned stream
// (via the returned stop func) ends discovery.
func (s *Session) Discover(ctx context.Context, prefix string) (paths []string, updates <-chan moq.Announcement, stop func(), err error) {
	ctrl, err := s.conn.OpenStream(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("moqsession: open announce stream: %w", err)
	}
	if err := moq.WriteAnnounceRequest(ctrl, moq.AnnounceRequest{Prefix: prefix}); err != nil {
		return nil, nil, nil, fmt.Errorf("moqsession: write announce request: %w", err)
	}
	resp, err := moq.ReadAnnounceResponse(ctrl)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("moqsession: read announce response: %w", err)
	}

	ch := make(chan moq.Announcement, 8)
	go func() {
		defer close(ch)
		for {
			a, err := moq.ReadAnnouncement(ctrl)
			if err != nil {
				return
			}
			select {
			case ch <- a:
			case <-ctx.Done():
				return
			}
		}
	}()

	return resp.Paths, ch, func() { ctrl.Close() }, nil
}

// AnnounceResponder serves incoming ANNOUNCE requests against the list
// of broadcast paths returned by the paths func it was built with,
// called once per request.
type AnnounceResponder struct {
	pathsFn func() []string
}

// NewAnnounceResponder builds a responder that reports paths() on every
// ANNOUNCE request it serves.
func NewAnnounceResponder(paths func() []string) *AnnounceResponder {
	return &AnnounceResponder{pathsFn: paths}
}

// Serve handles one ANNOUNCE control stream: reply with the current
// path list, then hold the stream open (no further incremental
// announcements are sent in this minimal responder — XoQ bridges
// publish a fixed track set for the process lifetime, so there is
// nothing further to announce after the initial list).
func (a *AnnounceResponder) Serve(ctx context.Context, ctrl Stream) error {
	req, err := moq.ReadAnnounceRequest(ctrl)
	if err != nil {
		return fmt.Errorf("moqsession: read announce request: %w", err)
	}
	return a.reply(ctx, ctrl, req)
}

// serveBody handles an ANNOUNCE request whose body a Session's control
// dispatch loop already read off the wire via moq.ReadControlMessage.
func (a *AnnounceResponder) serveBody(ctx context.Context, ctrl Stream, body []byte) error {
	req, err := moq.ParseAnnounceRequest(body)
	if err != nil {
		return fmt.Errorf("moqsession: parse announce request: %w", err)
	}
	return a.reply(ctx, ctrl, req)
}

func (a *AnnounceResponder) reply(ctx context.Context, ctrl Stream, req moq.AnnounceRequest) error {
	var matched []string
	for _, p := range a.pathsFn() {
		if hasPrefix(p, req.Prefix) {
			matched = append(matched, p)
		}
	}

	if err := moq.WriteAnnounceResponse(ctrl, moq.AnnounceResponse{Paths: matched}); err != nil {
		return fmt.Errorf("moqsession: write announce response: %w", err)
	}

	<-ctx.Done()
	return ctrl.Close()
}

// SetAnnounceResponder configures the responder RunControlDispatch uses
// to serve incoming ANNOUNCE requests. Must be called before
// RunControlDispatch.
func (s *Session) SetAnnounceResponder(r *AnnounceResponder) {
	s.announceResponder = r
}

func hasPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}
