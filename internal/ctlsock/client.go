package ctlsock

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"grimm.is/splitdns/internal/connection"
)

// Send pushes conns to the control socket at path and waits for the reply.
// An "Error:" reply is returned as an error carrying the server's message.
func Send(ctx context.Context, path string, conns connection.Connections) error {
	if conns == nil {
		conns = connection.Connections{}
	}
	payload, err := json.Marshal(conns)
	if err != nil {
		return fmt.Errorf("encode connections: %w", err)
	}
	return SendRaw(ctx, path, payload)
}

// SendRaw writes payload as-is, followed by a newline.
func SendRaw(ctx context.Context, path string, payload []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", path, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && reply == "" {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read reply: %w", err)
	}
	reply = strings.TrimRight(reply, "\r\n")

	switch {
	case reply == replySuccess:
		return nil
	case strings.HasPrefix(reply, replyError):
		return errors.New(strings.TrimPrefix(reply, replyError))
	}
	return fmt.Errorf("unexpected reply %q", reply)
}
