// Package wire simulates a BLE radio over Unix domain sockets so that
// several cow-shake processes on one machine can discover, connect to and
// write to each other.
//
// Real BLE behavior: advertising data is stored per-device and discovered
// via filesystem scanning (simulates over-the-air discovery). Each device
// listens on a single socket at {dataDir}/sockets/cowshake-{id}.sock and a
// link is one stream connection carrying length-prefixed protowire packets.
package wire

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/transport"
	"github.com/Mteixeira88/cow-shake/util"
)

var (
	ErrNotStarted   = errors.New("wire: device not started")
	ErrPoweredOff   = errors.New("wire: radio is powered off")
	ErrNotConnected = errors.New("wire: not connected")
)

// link is a single bidirectional connection to a peer
type link struct {
	conn   net.Conn
	peer   transport.PeerDevice
	role   ConnectionRole // Our role in this connection
	sendMu sync.Mutex     // Protects writes to this connection
	closed chan struct{}
	once   sync.Once
}

func (l *link) send(p *Packet) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	return WritePacket(l.conn, p)
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.closed)
		l.conn.Close()
	})
}

// Device is one simulated radio. It plays both the central and the
// peripheral role, so it satisfies transport.Central and transport.Peripheral.
type Device struct {
	id         string
	name       string
	dataDir    string
	socketPath string
	sim        *Simulator

	listener net.Listener
	stop     chan struct{}
	wg       sync.WaitGroup

	mu      sync.RWMutex
	links   map[string]*link // peer id -> link
	powered bool

	// central role
	pending  map[uint64]chan *Packet
	nextID   uint64
	states   []func(transport.State)
	scanStop chan struct{}
	scanMu   sync.Mutex
	reportMu sync.Mutex

	// peripheral role
	service     *transport.ServiceDescriptor
	advertising bool
	onWrite     func(transport.WriteRequest)
	onState     func(transport.State)
}

// NewDevice creates a powered-on device with a fresh random id. A nil sim
// uses DefaultSimulationConfig.
func NewDevice(dataDir, name string, sim *SimulationConfig) *Device {
	return NewDeviceWithID(dataDir, uuid.New().String(), name, sim)
}

// NewDeviceWithID is NewDevice with a caller-chosen id
func NewDeviceWithID(dataDir, id, name string, sim *SimulationConfig) *Device {
	if dataDir == "" {
		dataDir = util.GetDataDir()
	}
	return &Device{
		id:      id,
		name:    name,
		dataDir: dataDir,
		sim:     NewSimulator(sim),
		links:   make(map[string]*link),
		pending: make(map[uint64]chan *Packet),
		powered: true,
	}
}

// ID returns the device id peers connect to
func (d *Device) ID() string { return d.id }

// Name returns the advertised local name
func (d *Device) Name() string { return d.name }

func (d *Device) prefix() string {
	return shortHash(d.id) + " Wire"
}

// Start begins listening on the Unix domain socket
func (d *Device) Start() error {
	dir, err := util.SocketDir(d.dataDir)
	if err != nil {
		return err
	}
	d.socketPath = socketPath(dir, d.id)

	// Clean up any existing socket file
	os.Remove(d.socketPath)

	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.socketPath, err)
	}

	d.mu.Lock()
	d.listener = listener
	d.stop = make(chan struct{})
	d.mu.Unlock()

	d.wg.Add(1)
	go d.acceptConnections(listener)

	logger.Debug(d.prefix(), "🔌 Listening on %s as %q", d.socketPath, d.name)
	return nil
}

// Stop closes every link, withdraws the advert and removes the socket
// (idempotent - safe to call multiple times)
func (d *Device) Stop() {
	d.mu.Lock()
	if d.stop == nil {
		d.mu.Unlock()
		return
	}
	select {
	case <-d.stop:
		d.mu.Unlock()
		return
	default:
		close(d.stop)
	}
	listener := d.listener
	links := make([]*link, 0, len(d.links))
	for _, l := range d.links {
		links = append(links, l)
	}
	d.links = make(map[string]*link)
	d.advertising = false
	d.mu.Unlock()

	d.stopScan()
	d.removeAdvert()

	if listener != nil {
		listener.Close()
	}
	for _, l := range links {
		l.close()
	}
	d.wg.Wait()

	os.Remove(d.socketPath)
}

func (d *Device) started() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stop == nil {
		return false
	}
	select {
	case <-d.stop:
		return false
	default:
		return true
	}
}

// SetPowered simulates the user toggling the radio. Powering off drops
// every link and stops advertising.
func (d *Device) SetPowered(on bool) {
	d.mu.Lock()
	if d.powered == on {
		d.mu.Unlock()
		return
	}
	d.powered = on
	var links []*link
	if !on {
		for _, l := range d.links {
			links = append(links, l)
		}
		d.links = make(map[string]*link)
		d.advertising = false
	}
	handlers := append([]func(transport.State){}, d.states...)
	if d.onState != nil {
		handlers = append(handlers, d.onState)
	}
	d.mu.Unlock()

	if !on {
		d.stopScan()
		d.removeAdvert()
		for _, l := range links {
			l.close()
		}
	}

	state := transport.StateOff
	if on {
		state = transport.StateOn
	}
	logger.Info(d.prefix(), "📻 Radio %s", state)
	for _, h := range handlers {
		h(state)
	}
}

// acceptConnections handles incoming connections (we become Peripheral)
func (d *Device) acceptConnections(listener net.Listener) {
	defer d.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-d.stop:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		d.wg.Add(1)
		go d.handleIncomingConnection(conn)
	}
}

// handleIncomingConnection runs the peripheral side of the hello exchange
// and then serves the link until it closes
func (d *Device) handleIncomingConnection(conn net.Conn) {
	defer d.wg.Done()

	conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	hello, err := ReadPacket(conn)
	if err != nil || hello.Kind != KindHello || hello.Device == "" {
		logger.Warn(d.prefix(), "❌ Bad handshake: %v", err)
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	d.mu.Lock()
	if !d.powered {
		d.mu.Unlock()
		conn.Close()
		return
	}
	if old, exists := d.links[hello.Device]; exists {
		// peer reconnected without us noticing the old link drop
		old.close()
	}
	l := &link{
		conn:   conn,
		peer:   transport.PeerDevice{ID: hello.Device, Name: hello.Name},
		role:   RolePeripheral,
		closed: make(chan struct{}),
	}
	d.links[hello.Device] = l
	d.mu.Unlock()

	if err := l.send(&Packet{Kind: KindHelloAck, Device: d.id, Name: d.name}); err != nil {
		d.dropLink(l)
		return
	}

	logger.Info(d.prefix(), "🤝 %s (%s) connected to us", hello.Name, shortHash(hello.Device))
	d.readPackets(l)
}

// readPackets dispatches packets until the link closes
func (d *Device) readPackets(l *link) {
	defer d.dropLink(l)

	for {
		p, err := ReadPacket(l.conn)
		if err != nil {
			return // Connection closed or error
		}
		logger.Trace(d.prefix(), "📥 %s from %s: id=%d len=%d code=0x%02X",
			p.Kind, shortHash(l.peer.ID), p.ID, len(p.Value), p.Code)

		switch p.Kind {
		case KindWriteRequest:
			d.handleWriteRequest(l, p)
		case KindWriteResponse:
			d.deliverResponse(p)
		default:
			logger.Warn(d.prefix(), "⚠️  Unexpected %s from %s", p.Kind, shortHash(l.peer.ID))
		}
	}
}

// dropLink forgets l if it is still the current link to its peer
func (d *Device) dropLink(l *link) {
	l.close()
	d.mu.Lock()
	if cur, ok := d.links[l.peer.ID]; ok && cur == l {
		delete(d.links, l.peer.ID)
	}
	d.mu.Unlock()
	logger.Debug(d.prefix(), "🔌 Link to %s closed", shortHash(l.peer.ID))
}

func (d *Device) linkTo(id string) *link {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.links[id]
}

// ConnectedPeers returns the ids of every peer with an open link
func (d *Device) ConnectedPeers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.links))
	for id := range d.links {
		out = append(out, id)
	}
	return out
}

func socketPath(dir, id string) string {
	return filepath.Join(dir, fmt.Sprintf("cowshake-%s.sock", id))
}

// shortHash safely returns up to the first 8 characters of a string
func shortHash(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
