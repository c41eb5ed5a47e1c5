package sshadapter

import (
	"fmt"
	"net"
	"time"
)

func dialTCP(host string, port int, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), timeout)
}
