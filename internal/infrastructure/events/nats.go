package events

import "context"

// Conn is the subset of *nats.Conn used for publishing.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher sends change events to a NATS subject for the notifier.
type NATSPublisher struct {
	conn    Conn
	subject string
}

func NewNATSPublisher(conn Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

func (n *NATSPublisher) Publish(_ context.Context, e ChangeEvent) error {
	b, err := Encode(e)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, b)
}
