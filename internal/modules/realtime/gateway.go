package realtime

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

// TokenValidator resolves a handshake token to an identity.
type TokenValidator func(token string) (Identity, error)

// Gateway owns the socket.io server and bridges transport events into the
// coordinator.
type Gateway struct {
	sio       *socketio.Server
	coord     *Coordinator
	validate  TokenValidator
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewGateway(coord *Coordinator, validate TokenValidator, heartbeat time.Duration, logger *zap.Logger) *Gateway {
	g := &Gateway{
		sio:       socketio.NewServer(nil, nil),
		coord:     coord,
		validate:  validate,
		heartbeat: heartbeat,
		logger:    logger,
	}
	g.registerNamespace()
	return g
}

// Handler exposes the socket.io transport as an http.Handler.
func (g *Gateway) Handler() http.Handler {
	return g.sio.ServeHandler(nil)
}

// Close shuts the socket.io server down.
func (g *Gateway) Close() {
	g.sio.Close(nil)
}

// RegisterRoutes mounts the socket.io endpoint on the router.
func RegisterRoutes(rg *gin.RouterGroup, g *Gateway) {
	handler := gin.WrapH(g.Handler())
	rg.Any("/socket.io", handler)
	rg.Any("/socket.io/*any", handler)
}

// socketConn adapts a socket.io socket to the Conn interface.
type socketConn struct {
	client *socketio.Socket
}

func (s *socketConn) ID() string { return string(s.client.Id()) }

func (s *socketConn) Send(event string, payload interface{}) error {
	return s.client.Emit(event, payload)
}

func (s *socketConn) Close() error {
	s.client.Disconnect(true)
	return nil
}
