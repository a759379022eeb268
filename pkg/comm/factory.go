package comm

import "fmt"

// Transport names a socket implementation
const (
	TransportLocal = "local"
	TransportNNG   = "nng"
	TransportZMQ   = "zmq"
)

// zmqFactory is set by zmq.go when built with the zmq tag
var zmqFactory func() SocketFactory

// NewSocketFactory returns the factory for a transport name
func NewSocketFactory(transport string) (SocketFactory, error) {
	switch transport {
	case TransportNNG:
		return NewNNGSocketFactory(), nil
	case TransportZMQ:
		if zmqFactory == nil {
			return nil, fmt.Errorf("%w: transport %q requires building with -tags zmq", ErrInvalidArgument, transport)
		}
		return zmqFactory(), nil
	default:
		return nil, fmt.Errorf("%w: unknown socket transport %q", ErrInvalidArgument, transport)
	}
}
