package driver

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"

	"github.com/aleph-go/poset/internal/log"
)

// txBatchMessage is the opaque-to-the-core wire shape accepted on the
// ingress port: newline-delimited JSON, one batch per connection-write,
// each tx a base64 blob of whatever order.EncodeTx produced upstream
// (§6 "Batch format is opaque to the core").
type txBatchMessage struct {
	Txs []string `json:"txs"`
}

// Ingress is the per-process transaction ingress listener (§4.5, §6): an
// external process connects, writes newline-delimited JSON batches, and
// they land on a buffered channel (one producer goroutine per connection)
// that the creator loop drains from (§5 "Shared resources").
type Ingress struct {
	listener net.Listener
	queue    chan []byte
}

// NewIngress starts listening on addr:port and returns the channel the
// creator loop should drain.
func NewIngress(addr string, port int) (*Ingress, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return nil, fmt.Errorf("listen ingress: %w", err)
	}
	ing := &Ingress{listener: ln, queue: make(chan []byte, 256)}
	go ing.acceptLoop()
	return ing, nil
}

// Queue returns the channel of individual transaction blobs.
func (i *Ingress) Queue() <-chan []byte {
	return i.queue
}

// Close stops accepting new ingress connections.
func (i *Ingress) Close() error {
	return i.listener.Close()
}

func (i *Ingress) acceptLoop() {
	for {
		conn, err := i.listener.Accept()
		if err != nil {
			return // Listener closed.
		}
		go i.handleConn(conn)
	}
}

func (i *Ingress) handleConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var batch txBatchMessage
		if err := json.Unmarshal(scanner.Bytes(), &batch); err != nil {
			log.Driver.Warn().Err(err).Msg("ingress: malformed batch, dropping connection")
			return
		}
		for _, encoded := range batch.Txs {
			raw, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				log.Driver.Warn().Err(err).Msg("ingress: malformed tx blob, skipping")
				continue
			}
			select {
			case i.queue <- raw:
			default:
				log.Driver.Warn().Msg("ingress: queue full, dropping tx")
			}
		}
	}
}
