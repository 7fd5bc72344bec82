package proxy

import "errors"

// ErrConnectionLost is wrapped around a transport's Closed() error when
// escalating to teardown (spec.md §7: ConnectionLost).
var ErrConnectionLost = errors.New("proxy: connection lost")
