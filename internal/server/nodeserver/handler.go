package nodeserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
	"github.com/yndnr/dirmesh-go/internal/core/service"
	"github.com/yndnr/dirmesh-go/internal/wire"
)

// state is the position of a connection in its lifecycle.
type state int

const (
	// stateTerminal closes the connection.
	stateTerminal state = iota
	// statePersistent keeps a subscription connection reading commands.
	statePersistent
)

// session is the per-connection context of a handler.
type session struct {
	srv    *Server
	lis    *listener
	conn   *wire.Conn
	logger *slog.Logger

	// sub is created by the first SUBSCRIBE.
	sub *service.Subscriber
}

// origin is stamped on resources leaving through this connection.
func (s *session) origin() string {
	if s.lis.fed == nil {
		return ""
	}
	return s.lis.fed.Origin()
}

// fail reports err to the client and ends the connection.
func (s *session) fail(err error) state {
	if sendErr := s.conn.Send(domain.ResponseFromError(err)); sendErr != nil {
		s.logger.Debug("send error response failed", "error", sendErr)
	}
	return stateTerminal
}

// handlerFunc runs one command. A returned error is sent to the client as
// an error response and ends the connection.
type handlerFunc func(ctx context.Context, s *session, cmd domain.Command) (state, error)

// handlers is the dispatch table of the first command of a connection.
var handlers = map[domain.Kind]handlerFunc{
	domain.KindPublish:     handlePublish,
	domain.KindRemove:      handleRemove,
	domain.KindShare:       handleShare,
	domain.KindQuery:       handleQuery,
	domain.KindFetch:       handleFetch,
	domain.KindExchange:    handleExchange,
	domain.KindSubscribe:   handleSubscribe,
	domain.KindUnsubscribe: handleUnsubscribe,
}

// persistentHandlers are the commands accepted on a subscription connection.
var persistentHandlers = map[domain.Kind]handlerFunc{
	domain.KindSubscribe:   handleSubscribe,
	domain.KindUnsubscribe: handleUnsubscribe,
}

func (srv *Server) serveConn(ctx context.Context, l *listener, c *wire.Conn) {
	c.SetReadTimeout(srv.cfg.ReadTimeout)
	c.SetWriteTimeout(srv.cfg.WriteTimeout)

	s := &session{
		srv:    srv,
		lis:    l,
		conn:   c,
		logger: srv.logger.With("listener", l.name, "remote", c.RemoteAddr().String()),
	}
	defer func() {
		if s.sub != nil {
			s.sub.Close()
		}
	}()

	st := s.next(ctx, handlers)
	if st != statePersistent {
		return
	}

	c.SetReadTimeout(0)
	for st == statePersistent {
		st = s.next(ctx, persistentHandlers)
	}
}

// next reads one command and dispatches it through table.
func (s *session) next(ctx context.Context, table map[domain.Kind]handlerFunc) state {
	frame, err := s.conn.Receive()
	if err != nil {
		s.logReadError(err)
		return stateTerminal
	}
	s.conn.Consume()

	cmd, err := domain.DecodeCommand(frame)
	if err != nil {
		s.logger.Info("undecodable command", "error", err)
		return s.fail(err)
	}

	h, ok := table[cmd.Kind()]
	if !ok {
		s.logger.Info("unexpected command", "command", string(cmd.Kind()))
		s.srv.deps.Metrics.RecordCommand(string(cmd.Kind()), "error")
		return s.fail(domain.ErrUnexpectedCommand)
	}

	start := time.Now()
	st, err := h(ctx, s, cmd)
	s.srv.deps.Metrics.ObserveCommandDuration(string(cmd.Kind()), time.Since(start).Seconds())
	if err != nil {
		s.srv.deps.Metrics.RecordCommand(string(cmd.Kind()), "error")
		var gone clientGone
		if errors.As(err, &gone) {
			s.logger.Debug("client went away", "command", string(cmd.Kind()), "error", err)
			return stateTerminal
		}
		s.logger.Info("command failed", "command", string(cmd.Kind()), "error", err)
		return s.fail(err)
	}
	s.srv.deps.Metrics.RecordCommand(string(cmd.Kind()), "success")
	return st
}

func (s *session) logReadError(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	case errors.As(err, &netErr) && netErr.Timeout():
		s.logger.Debug("connection timed out")
	default:
		s.logger.Debug("connection read error", "error", err)
	}
}

// clientGone wraps an error writing to the client. The session ends
// without an error response.
type clientGone struct{ err error }

func (e clientGone) Error() string { return "write to client: " + e.err.Error() }
func (e clientGone) Unwrap() error { return e.err }

func handlePublish(ctx context.Context, s *session, cmd domain.Command) (state, error) {
	if err := s.srv.deps.Resources.Publish(ctx, cmd.(domain.Publish).Resource); err != nil {
		return stateTerminal, err
	}
	return stateTerminal, s.reply(domain.SuccessResponse())
}

func handleRemove(ctx context.Context, s *session, cmd domain.Command) (state, error) {
	if err := s.srv.deps.Resources.Remove(ctx, cmd.(domain.Remove).Resource); err != nil {
		return stateTerminal, err
	}
	return stateTerminal, s.reply(domain.SuccessResponse())
}

func handleShare(ctx context.Context, s *session, cmd domain.Command) (state, error) {
	sh := cmd.(domain.Share)
	if err := s.srv.deps.Resources.Share(ctx, sh.Resource, sh.Secret); err != nil {
		return stateTerminal, err
	}
	return stateTerminal, s.reply(domain.SuccessResponse())
}

func handleQuery(ctx context.Context, s *session, cmd domain.Command) (state, error) {
	q := cmd.(domain.Query)
	local, err := s.srv.deps.Resources.Query(ctx, q.Template)
	if err != nil {
		return stateTerminal, err
	}
	if err := s.reply(domain.SuccessResponse()); err != nil {
		return stateTerminal, err
	}

	origin := s.origin()
	sent := 0
	emit := func(r *domain.Resource) error {
		if err := s.reply(r.Anonymized(origin)); err != nil {
			return err
		}
		sent++
		return nil
	}
	for _, r := range local {
		if err := emit(r); err != nil {
			return stateTerminal, err
		}
	}
	if q.Relay && s.lis.fed != nil {
		if err := s.lis.fed.Queries.QueryAll(ctx, q, emit); err != nil {
			return stateTerminal, err
		}
	}
	return stateTerminal, s.reply(domain.ResultSize{ResultSize: sent})
}

func handleFetch(ctx context.Context, s *session, cmd domain.Command) (state, error) {
	res, rc, err := s.srv.deps.Resources.Fetch(ctx, cmd.(domain.Fetch).Template)
	if err != nil {
		return stateTerminal, err
	}
	defer rc.Close()

	if err := s.reply(domain.SuccessResponse()); err != nil {
		return stateTerminal, err
	}
	if err := s.reply(res.Anonymized(s.origin())); err != nil {
		return stateTerminal, err
	}
	if err := s.conn.SendRaw(rc, res.Size); err != nil {
		return stateTerminal, clientGone{err}
	}
	return stateTerminal, s.reply(domain.ResultSize{ResultSize: 1})
}

func handleExchange(_ context.Context, s *session, cmd domain.Command) (state, error) {
	if s.lis.fed == nil {
		return stateTerminal, domain.ErrInvalidCommand
	}
	if err := s.lis.fed.Merge(cmd.(domain.Exchange).Servers); err != nil {
		return stateTerminal, err
	}
	return stateTerminal, s.reply(domain.SuccessResponse())
}

func handleSubscribe(_ context.Context, s *session, cmd domain.Command) (state, error) {
	sc := cmd.(domain.Subscribe)
	if sc.Template == nil {
		return stateTerminal, domain.ErrMissingTemplate
	}
	if s.sub == nil {
		var relay service.Relay
		if s.lis.fed != nil && s.lis.fed.Subscriptions != nil {
			relay = s.lis.fed.Subscriptions
		}
		origin := s.origin()
		s.sub = s.srv.deps.Subscriptions.AddSubscriber(func(r *domain.Resource) error {
			return s.conn.Send(r.Anonymized(origin))
		}, relay)
		s.sub.OnStall(func() {
			s.logger.Info("subscriber too slow, closing connection")
			s.conn.Close()
		})
	}

	id := sc.ID
	if id == "" {
		id = ulid.Make().String()
	}
	if err := s.sub.Subscribe(id, sc.Template, sc.Relay); err != nil {
		return stateTerminal, err
	}
	if err := s.reply(domain.SubscribedResponse(id)); err != nil {
		return stateTerminal, err
	}
	return statePersistent, nil
}

func handleUnsubscribe(_ context.Context, s *session, cmd domain.Command) (state, error) {
	if s.sub == nil {
		return stateTerminal, s.reply(domain.ResultSize{ResultSize: 0})
	}
	count := s.sub.Unsubscribe(cmd.(domain.Unsubscribe).ID)
	if err := s.reply(domain.ResultSize{ResultSize: count}); err != nil {
		return stateTerminal, err
	}
	return statePersistent, nil
}

// reply sends v. A failure is returned as clientGone.
func (s *session) reply(v any) error {
	if err := s.conn.Send(v); err != nil {
		return clientGone{err}
	}
	return nil
}
