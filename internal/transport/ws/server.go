package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"robotodyssey.web/internal/autosave"
	"robotodyssey.web/internal/persistence/archive"
	"robotodyssey.web/internal/protocol"
	"robotodyssey.web/internal/savecodec"
	"robotodyssey.web/internal/savedata"
)

// DownloadRecorder indexes saves handed to a page.
type DownloadRecorder interface {
	RecordDownload(session, path, filename string, c savedata.Classification, size int)
}

type Config struct {
	// NewEngine builds the engine for one page.
	NewEngine func() (autosave.Engine, error)
	Codec     savecodec.Codec
	Debounce  time.Duration
	// Clock drives the autosave debounce. Nil means the system clock.
	Clock autosave.Clock
	Sink  autosave.Sink
	// ArchiveDir keeps a copy of every explicit save. Empty disables it.
	ArchiveDir string
	Downloads  DownloadRecorder
}

type Server struct {
	cfg Config
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(cfg Config, logger *log.Logger) *Server {
	if cfg.Debounce <= 0 {
		cfg.Debounce = autosave.DefaultDebounce
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

// conn is the server side of one page.
type conn struct {
	id     string
	ctx    context.Context
	out    chan []byte
	engine autosave.Engine
	sess   *autosave.Session
	loc    *pageLocation
}

func (c *conn) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.out <- b:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		wc, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer wc.Close()

		hello, ok := s.handshake(wc)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c, err := s.open(ctx, hello)
		if err != nil {
			s.log.Printf("open session: %v", err)
			_ = writeJSON(wc, protocol.NewError(protocol.ErrInternal, "engine unavailable"))
			return
		}
		defer c.sess.Close()

		if err := writeJSON(wc, protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       c.id,
			DebounceMs:      int(s.cfg.Debounce / time.Millisecond),
		}); err != nil {
			return
		}

		go func() { _ = c.sess.Run(ctx) }()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-c.out:
					_ = wc.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := wc.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = wc.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := wc.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.dispatch(c, msg)
		}
	}
}

func (s *Server) handshake(wc *websocket.Conn) (protocol.HelloMsg, bool) {
	var hello protocol.HelloMsg
	_ = wc.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := wc.ReadMessage()
	if err != nil {
		return hello, false
	}

	base, err := protocol.Validate(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = wc.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return hello, false
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		return hello, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = wc.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return hello, false
	}
	return hello, true
}

func (s *Server) open(ctx context.Context, hello protocol.HelloMsg) (*conn, error) {
	eng, err := s.cfg.NewEngine()
	if err != nil {
		return nil, err
	}
	c := &conn{
		id:     uuid.NewString(),
		ctx:    ctx,
		out:    make(chan []byte, 16),
		engine: eng,
	}
	c.loc = newPageLocation(hello.Hash, func(v any) error { return c.send(v) })
	eng.SetSaveFileWriteHook(func() { s.offerDownload(c) })

	sinks := autosave.Sinks{autosave.SinkFunc(func(e autosave.Event) { s.notifyPage(c, e) })}
	if s.cfg.Sink != nil {
		sinks = append(sinks, s.cfg.Sink)
	}
	c.sess = autosave.NewSession(eng, c.loc, autosave.Config{
		Debounce:  s.cfg.Debounce,
		Codec:     s.cfg.Codec,
		Clock:     s.cfg.Clock,
		Logger:    log.New(s.log.Writer(), "[autosave "+c.id[:8]+"] ", log.LstdFlags|log.Lmicroseconds),
		Sink:      sinks,
		SessionID: c.id,
	})
	return c, nil
}

func (s *Server) dispatch(c *conn, msg []byte) {
	base, err := protocol.Validate(msg)
	if err != nil {
		_ = c.send(protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	switch base.Type {
	case protocol.TypeHashChange:
		var m protocol.HashChangeMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		c.loc.pageChanged(m.Hash)
	case protocol.TypeUpload:
		var m protocol.UploadMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		data, err := savecodec.Std.Decode(m.Data)
		if err != nil {
			_ = c.send(protocol.NewError(protocol.ErrBadRequest, "upload is not base64"))
			return
		}
		c.sess.Do(func() { s.load(c, data) })
	case protocol.TypeSave:
		c.sess.Do(func() { s.save(c) })
	default:
		_ = c.send(protocol.NewError(protocol.ErrProtoBadRequest, "unexpected "+base.Type))
	}
}

// load runs on the session loop.
func (s *Server) load(c *conn, data []byte) {
	cls := savedata.Classify(data)
	c.engine.SetSaveFile(data)
	if !c.engine.LoadGame() {
		_ = c.send(protocol.NewError(protocol.ErrUnsupported, "cannot load "+cls.Label()))
		return
	}
	_ = c.send(protocol.NewStatus("loaded " + cls.Label()))
}

// save runs on the session loop. A successful save reaches the page through
// the write hook.
func (s *Server) save(c *conn) {
	st, err := c.engine.SaveGame()
	if err != nil {
		s.log.Printf("session %s: save: %v", c.id, err)
		_ = c.send(protocol.NewError(protocol.ErrInternal, "save failed"))
		return
	}
	switch st {
	case autosave.SaveOK:
	case autosave.SaveBlocked:
		_ = c.send(protocol.NewError(protocol.ErrBlocked, "cannot save right now, try again"))
	case autosave.SaveNotSupported:
		_ = c.send(protocol.NewError(protocol.ErrUnsupported, "nothing to save here"))
	default:
		_ = c.send(protocol.NewError(protocol.ErrInternal, fmt.Sprintf("unexpected save status %v", st)))
	}
}

// offerDownload is the user write hook. Autosaves swap it out, so it only
// runs for explicit saves.
func (s *Server) offerDownload(c *conn) {
	data := bytes.Clone(c.engine.SaveFile())
	now := time.Now()
	cls := savedata.Classify(data)
	name := cls.Filename(now)

	path := ""
	if s.cfg.ArchiveDir != "" {
		p, _, err := archive.WriteSave(s.cfg.ArchiveDir, data, now)
		if err != nil {
			s.log.Printf("session %s: archive: %v", c.id, err)
		} else {
			path = p
		}
	}
	if s.cfg.Downloads != nil {
		s.cfg.Downloads.RecordDownload(c.id, path, name, cls, len(data))
	}

	_ = c.send(protocol.DownloadMsg{
		Type:     protocol.TypeDownload,
		Filename: name,
		Kind:     cls.Kind.String(),
		Label:    cls.Label(),
		Size:     len(data),
		Data:     savecodec.Std.Encode(data),
	})
}

// notifyPage reports inbound hash outcomes. Autosave outcomes are visible to
// the page as SET_HASH already.
func (s *Server) notifyPage(c *conn, e autosave.Event) {
	switch e.Kind {
	case autosave.EventHashLoaded:
		_ = c.send(protocol.NewStatus("loaded saved game from link"))
	case autosave.EventHashDecodeFailed, autosave.EventHashUnpackFailed:
		_ = c.send(protocol.NewError(protocol.ErrBadRequest, "link does not hold a saved game"))
	case autosave.EventHashLoadFailed:
		_ = c.send(protocol.NewError(protocol.ErrUnsupported, "saved game in link could not be loaded"))
	}
}

func setHashMsg(fragment string) protocol.SetHashMsg {
	return protocol.SetHashMsg{Type: protocol.TypeSetHash, Hash: fragment}
}

func writeJSON(wc *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = wc.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return wc.WriteMessage(websocket.TextMessage, b)
}
