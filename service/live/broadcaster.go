package live

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/service/lgr"
)

const (
	jpegQuality  = 75
	writeTimeout = 2 * time.Second
)

const indexPage = `<!doctype html>
<html><head><title>vs-sentry</title></head>
<body style="margin:0;background:#111">
<img id="frame" style="max-width:100%">
<script>
const img = document.getElementById("frame");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.binaryType = "blob";
ws.onmessage = (e) => {
  const url = URL.createObjectURL(e.data);
  img.onload = () => URL.revokeObjectURL(url);
  img.src = url;
};
</script>
</body></html>`

// Broadcaster pushes every emitted frame as a JPEG websocket message to all
// connected browsers. Frames are dropped rather than queued when the hub is
// busy so a slow client never stalls the caller.
type Broadcaster struct {
	addr       string
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	wg         sync.WaitGroup
	mutex      sync.RWMutex
	server     *http.Server
	dropped    *atomic.Int64
	closeOnce  sync.Once
}

var _ IService = (*Broadcaster)(nil)

func NewBroadcaster(addr string) *Broadcaster {
	b := &Broadcaster{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 1),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		dropped:    atomic.NewInt64(0),
	}

	b.wg.Add(1)
	go b.run()
	return b
}

// Start serves the viewer page and the websocket endpoint on the configured
// address. It returns once the listener is bound.
func (b *Broadcaster) Start() error {
	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return xerrors.Errorf("listening on %s: %w", b.addr, err)
	}

	b.server = &http.Server{
		Handler:           b.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lgr.Logger.Info(
		"live broadcaster listening",
		slog.String("addr", ln.Addr().String()),
	)

	go func() {
		if err := b.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lgr.Logger.Error(
				"live broadcaster server failed",
				slog.Any("error", err),
			)
		}
	}()
	return nil
}

func (b *Broadcaster) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexPage))
	})
	mux.HandleFunc("/ws", b.serveWS)
	return mux
}

func (b *Broadcaster) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		lgr.Logger.Warn(
			"websocket upgrade failed",
			slog.Any("error", err),
		)
		return
	}

	select {
	case b.register <- conn:
	case <-b.done:
		conn.Close()
		return
	}

	// Drain the read side so close frames and pings are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				select {
				case b.unregister <- conn:
				case <-b.done:
				}
				return
			}
		}
	}()
}

func (b *Broadcaster) run() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			b.mutex.Lock()
			for client := range b.clients {
				client.Close()
				delete(b.clients, client)
			}
			b.mutex.Unlock()
			return

		case client := <-b.register:
			b.mutex.Lock()
			b.clients[client] = true
			total := len(b.clients)
			b.mutex.Unlock()
			lgr.Logger.Debug("live client connected", slog.Int("clients", total))

		case client := <-b.unregister:
			b.mutex.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				client.Close()
			}
			total := len(b.clients)
			b.mutex.Unlock()
			lgr.Logger.Debug("live client disconnected", slog.Int("clients", total))

		case message := <-b.broadcast:
			b.mutex.Lock()
			for client := range b.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteMessage(websocket.BinaryMessage, message); err != nil {
					lgr.Logger.Debug("live client write failed", slog.Any("error", err))
					delete(b.clients, client)
					client.Close()
				}
			}
			b.mutex.Unlock()
		}
	}
}

// Emit encodes the frame only when somebody is watching.
func (b *Broadcaster) Emit(frame image.Image) error {
	if b.ClientCount() == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return xerrors.Errorf("encoding live frame: %w", err)
	}

	select {
	case <-b.done:
		return nil
	case b.broadcast <- buf.Bytes():
	default:
		b.dropped.Inc()
	}
	return nil
}

func (b *Broadcaster) ClientCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Broadcaster) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			err = b.server.Shutdown(ctx)
		}
		close(b.done)
		b.wg.Wait()
	})
	return err
}
